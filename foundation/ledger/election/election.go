// Package election maintains access to the election configuration file. The
// election file plays the role the genesis file plays for a currency chain:
// it fixes the parameters every ballot and block is validated against.
package election

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Election represents the election configuration file.
type Election struct {
	Date            time.Time `json:"date"`
	ElectionID      string    `json:"election_id"`       // Unique id for this election instance.
	Name            string    `json:"name"`              // Human readable name for the election.
	Candidates      []string  `json:"candidates"`        // The set of recognized candidate identifiers.
	Districts       []string  `json:"districts"`         // The set of valid voting districts.
	BallotsPerBlock uint16    `json:"ballots_per_block"` // The maximum number of ballots that can be in a block.
	Difficulty      uint16    `json:"difficulty"`        // How difficult it needs to be to solve the work problem.
	TimestampSkew   uint16    `json:"timestamp_skew"`    // Accepted ballot timestamp skew in seconds.
}

// =============================================================================

// Load opens and consumes the election file.
func Load(path string) (Election, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Election{}, err
	}

	var elect Election
	if err := json.Unmarshal(content, &elect); err != nil {
		return Election{}, err
	}

	if err := elect.validate(); err != nil {
		return Election{}, err
	}

	return elect, nil
}

// Save writes the election configuration to the specified path.
func (e Election) Save(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// IsCandidate tests if the specified identifier is a recognized candidate.
func (e Election) IsCandidate(candidateID string) bool {
	for _, c := range e.Candidates {
		if c == candidateID {
			return true
		}
	}

	return false
}

// IsDistrict tests if the specified identifier is a valid district.
func (e Election) IsDistrict(district string) bool {
	for _, d := range e.Districts {
		if d == district {
			return true
		}
	}

	return false
}

// Skew returns the accepted timestamp skew as a duration.
func (e Election) Skew() time.Duration {
	return time.Duration(e.TimestampSkew) * time.Second
}

// =============================================================================

// validate performs basic sanity checks on a loaded election file.
func (e Election) validate() error {
	if e.ElectionID == "" {
		return fmt.Errorf("election file missing election_id")
	}

	if len(e.Candidates) == 0 {
		return fmt.Errorf("election %q has no candidates", e.ElectionID)
	}

	if e.BallotsPerBlock == 0 {
		return fmt.Errorf("election %q has ballots_per_block of zero", e.ElectionID)
	}

	// A 64 hex character hash can only be asked for so many leading zeros
	// before the work problem has no solution.
	const maxDifficulty = 17
	if e.Difficulty == 0 || e.Difficulty > maxDifficulty {
		return fmt.Errorf("election %q difficulty must be between 1 and %d, got %d", e.ElectionID, maxDifficulty, e.Difficulty)
	}

	return nil
}
