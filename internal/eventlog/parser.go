// Package eventlog decodes event logs against known ABIs, repairing indexed
// address topics that carry garbage in their high-order bytes.
package eventlog

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrValueOutOfRange = errors.New("value out of range")
	ErrUnknownEvent    = errors.New("unknown event")
)

// ArgumentError reports a failure decoding one event input.
type ArgumentError struct {
	Name  string
	Index int
	Type  string
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %q (%s): %v", e.Name, e.Type, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Event is a decoded log.
type Event struct {
	Name string
	Args map[string]any
}

// Parse looks up the event by the log's first topic and decodes it.
func Parse(contract *abi.ABI, lg *types.Log) (*Event, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrUnknownEvent)
	}
	ev, err := contract.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, lg.Topics[0].Hex())
	}
	return ParseEvent(ev, lg)
}

// ParseEvent decodes lg as ev. An out-of-range indexed address is repaired
// once by zero-padding the low 20 bytes of its topic; any other failure is
// returned as is.
func ParseEvent(ev *abi.Event, lg *types.Log) (*Event, error) {
	out, err := decode(ev, lg.Topics, lg.Data)
	if err == nil {
		return out, nil
	}

	var argErr *ArgumentError
	if !errors.As(err, &argErr) || !errors.Is(argErr.Err, ErrValueOutOfRange) || argErr.Type != "address" {
		return nil, err
	}
	slot := topicSlot(ev, argErr.Index)
	if slot <= 0 || slot >= len(lg.Topics) {
		return nil, err
	}

	topics := make([]common.Hash, len(lg.Topics))
	copy(topics, lg.Topics)
	topics[slot] = common.BytesToHash(topics[slot][common.HashLength-common.AddressLength:])
	return decode(ev, topics, lg.Data)
}

func decode(ev *abi.Event, topics []common.Hash, data []byte) (*Event, error) {
	if !ev.Anonymous {
		if len(topics) == 0 || topics[0] != ev.ID {
			return nil, fmt.Errorf("%w: topic does not match %s", ErrUnknownEvent, ev.Name)
		}
		topics = topics[1:]
	}

	indexed, nonIndexed := splitIndexed(ev.Inputs)
	pos := 0
	for i, in := range ev.Inputs {
		if !in.Indexed {
			continue
		}
		if pos < len(topics) && in.Type.T == abi.AddressTy && !isAddressWord(topics[pos]) {
			return nil, &ArgumentError{Name: in.Name, Index: i, Type: in.Type.String(), Err: ErrValueOutOfRange}
		}
		pos++
	}

	args := map[string]any{}
	if err := abi.ParseTopicsIntoMap(args, indexed, topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := nonIndexed.UnpackIntoMap(args, data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	return &Event{Name: ev.Name, Args: args}, nil
}

// topicSlot maps an input position to its topic index; topic 0 is the
// event signature.
func topicSlot(ev *abi.Event, inputIndex int) int {
	if inputIndex < 0 || inputIndex >= len(ev.Inputs) || !ev.Inputs[inputIndex].Indexed {
		return -1
	}
	slot := 1
	for _, in := range ev.Inputs[:inputIndex] {
		if in.Indexed {
			slot++
		}
	}
	if ev.Anonymous {
		slot--
	}
	return slot
}

func isAddressWord(h common.Hash) bool {
	for _, b := range h[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}

// Address returns an address argument.
func (e *Event) Address(name string) (common.Address, error) {
	v, ok := e.Args[name]
	if !ok {
		return common.Address{}, fmt.Errorf("event %s: missing argument %q", e.Name, name)
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("event %s: argument %q is %T, not address", e.Name, name, v)
	}
	return a, nil
}

// BigInt returns an integer argument of any width.
func (e *Event) BigInt(name string) (*big.Int, error) {
	v, ok := e.Args[name]
	if !ok {
		return nil, fmt.Errorf("event %s: missing argument %q", e.Name, name)
	}
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	default:
		return nil, fmt.Errorf("event %s: argument %q is %T, not integer", e.Name, name, v)
	}
}

// Hash returns a bytes32 argument.
func (e *Event) Hash(name string) (common.Hash, error) {
	v, ok := e.Args[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %s: missing argument %q", e.Name, name)
	}
	switch h := v.(type) {
	case [32]byte:
		return common.Hash(h), nil
	case common.Hash:
		return h, nil
	default:
		return common.Hash{}, fmt.Errorf("event %s: argument %q is %T, not bytes32", e.Name, name, v)
	}
}

// Bytes returns a dynamic bytes argument.
func (e *Event) Bytes(name string) ([]byte, error) {
	v, ok := e.Args[name]
	if !ok {
		return nil, fmt.Errorf("event %s: missing argument %q", e.Name, name)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("event %s: argument %q is %T, not bytes", e.Name, name, v)
	}
	return b, nil
}

// String returns a string argument.
func (e *Event) String(name string) (string, error) {
	v, ok := e.Args[name]
	if !ok {
		return "", fmt.Errorf("event %s: missing argument %q", e.Name, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("event %s: argument %q is %T, not string", e.Name, name, v)
	}
	return s, nil
}
