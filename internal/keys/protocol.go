package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Protocol is a wallet protocol identifier. On the wire it is the pair
// [securityLevel, "protocol name"].
type Protocol struct {
	SecurityLevel int
	Name          string
}

// Wire-level protocols used by the bridge.
var (
	// PaymentProtocol is the BRC-29 payment derivation protocol.
	PaymentProtocol = Protocol{SecurityLevel: 2, Name: "3241645161d8"}
	// DestinationProtocol is the protocol of the simple destination variant.
	DestinationProtocol = Protocol{SecurityLevel: 0, Name: "paymail destination"}
)

func (p Protocol) String() string {
	return fmt.Sprintf("[%d,%q]", p.SecurityLevel, p.Name)
}

// Validate checks the security level range and the protocol name.
func (p Protocol) Validate() error {
	if p.SecurityLevel < 0 || p.SecurityLevel > 2 {
		return fmt.Errorf("protocol security level must be 0, 1 or 2, got %d", p.SecurityLevel)
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("protocol name is required")
	}
	return nil
}

func (p Protocol) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.SecurityLevel, p.Name})
}

func (p *Protocol) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("protocolID must be [level, name]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("protocolID must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.SecurityLevel); err != nil {
		return fmt.Errorf("protocolID security level: %w", err)
	}
	if err := json.Unmarshal(pair[1], &p.Name); err != nil {
		return fmt.Errorf("protocolID name: %w", err)
	}
	return nil
}
