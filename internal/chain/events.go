package chain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Field names follow the ABI argument names so UnpackLog can map them.
type inferenceRequestedLog struct {
	RequestId *big.Int
	User      common.Address
	ModelId   *big.Int
	Minutes   *big.Int
	ExpiresAt *big.Int
}

type modelRegisteredLog struct {
	ModelId        *big.Int
	Owner          common.Address
	IpfsCid        string
	PricePerMinute *big.Int
}

var errNoRequestEvent = errors.New("receipt has no InferenceRequested event")

func decodeInferenceRequested(contract *bind.BoundContract, l types.Log) (*PaymentRequested, error) {
	var raw inferenceRequestedLog
	if err := contract.UnpackLog(&raw, EventInferenceRequested, l); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", EventInferenceRequested, err)
	}

	ev := &PaymentRequested{
		RequestID:   raw.RequestId,
		User:        raw.User,
		ModelID:     raw.ModelId,
		Minutes:     raw.Minutes,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}
	if raw.ExpiresAt != nil {
		ev.ExpiresAt = time.Unix(raw.ExpiresAt.Int64(), 0).UTC()
	}
	return ev, nil
}

func findInferenceRequested(contract *bind.BoundContract, address common.Address, logs []*types.Log) (*PaymentRequested, error) {
	topic := InferenceManagerABI.Events[EventInferenceRequested].ID
	for _, l := range logs {
		if l.Address != address || len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		return decodeInferenceRequested(contract, *l)
	}
	return nil, errNoRequestEvent
}

func packRequestInference(to common.Address, modelID *big.Int, minutes int64, value *big.Int) (*UnsignedTx, error) {
	data, err := InferenceManagerABI.Pack("requestInference", modelID, big.NewInt(minutes))
	if err != nil {
		return nil, fmt.Errorf("pack requestInference: %w", err)
	}
	return &UnsignedTx{To: to, Data: data, Value: value}, nil
}
