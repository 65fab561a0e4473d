package payments

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

//go:embed banks.json
var banksJSON []byte

// Bank is one FPS participant.
type Bank struct {
	MemberID string `json:"bank_member_id"`
	Name     string `json:"name"`
}

var (
	banksOnce sync.Once
	banks     []Bank
	banksErr  error
)

// Banks returns the FPS bank directory sorted by name.
func Banks() ([]Bank, error) {
	banksOnce.Do(func() { banks, banksErr = parseBanks(banksJSON) })
	return banks, banksErr
}

func parseBanks(raw []byte) ([]Bank, error) {
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse bank directory: %w", err)
	}
	out := make([]Bank, 0, len(m))
	for id, name := range m {
		out = append(out, Bank{MemberID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].MemberID < out[j].MemberID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
