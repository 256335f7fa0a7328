// Command inferctl administers an InferChain deployment: schema migrations,
// catalog seeding, role grants and node registry checks.
package main

func main() {
	Execute()
}
