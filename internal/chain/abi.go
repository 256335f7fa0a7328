package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, limited to the functions and events this service calls.

const modelRegistryABI = `[
	{"type":"function","name":"registerModel","stateMutability":"nonpayable",
	 "inputs":[{"name":"ipfsCid","type":"string"},{"name":"pricePerMinute","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"updatePrice","stateMutability":"nonpayable",
	 "inputs":[{"name":"modelId","type":"uint256"},{"name":"newPrice","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getModel","stateMutability":"view",
	 "inputs":[{"name":"modelId","type":"uint256"}],
	 "outputs":[{"name":"owner","type":"address"},{"name":"ipfsCid","type":"string"},
	            {"name":"pricePerMinute","type":"uint256"},{"name":"active","type":"bool"}]},
	{"type":"function","name":"getPricePerMinute","stateMutability":"view",
	 "inputs":[{"name":"modelId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"nextModelId","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"ModelRegistered","anonymous":false,
	 "inputs":[{"name":"modelId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true},
	           {"name":"ipfsCid","type":"string","indexed":false},{"name":"pricePerMinute","type":"uint256","indexed":false}]}
]`

const inferenceManagerABI = `[
	{"type":"function","name":"requestInference","stateMutability":"payable",
	 "inputs":[{"name":"modelId","type":"uint256"},{"name":"minutes","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"submitResult","stateMutability":"nonpayable",
	 "inputs":[{"name":"requestId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"requests","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[{"name":"user","type":"address"},{"name":"modelId","type":"uint256"},
	            {"name":"paidAmount","type":"uint256"},{"name":"expiresAt","type":"uint256"},
	            {"name":"fulfilled","type":"bool"}]},
	{"type":"function","name":"nextRequestId","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"commissionAccount","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"InferenceRequested","anonymous":false,
	 "inputs":[{"name":"requestId","type":"uint256","indexed":true},{"name":"user","type":"address","indexed":true},
	           {"name":"modelId","type":"uint256","indexed":false},{"name":"minutes","type":"uint256","indexed":false},
	           {"name":"expiresAt","type":"uint256","indexed":false}]}
]`

const nodeRegistryABI = `[
	{"type":"function","name":"addNode","stateMutability":"nonpayable",
	 "inputs":[{"name":"node","type":"address"}],"outputs":[]},
	{"type":"function","name":"removeNode","stateMutability":"nonpayable",
	 "inputs":[{"name":"node","type":"address"}],"outputs":[]},
	{"type":"function","name":"isApproved","stateMutability":"view",
	 "inputs":[{"name":"node","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"admin","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]}
]`

// Event names.
const (
	EventInferenceRequested = "InferenceRequested"
	EventModelRegistered    = "ModelRegistered"
)

var (
	ModelRegistryABI    = mustParseABI("ModelRegistry", modelRegistryABI)
	InferenceManagerABI = mustParseABI("InferenceManager", inferenceManagerABI)
	NodeRegistryABI     = mustParseABI("NodeRegistry", nodeRegistryABI)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s ABI: %v", name, err))
	}
	return parsed
}
