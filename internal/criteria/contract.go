package criteria

import (
	"fmt"
	"strings"

	"github.com/kalambet/claimcheck/internal/claim"
)

const nameReminder = "IMPORTANT: Please compare the name of the person that made the ticket or claim against the data in the contract to ensure they match."

// VerifyContract checks that a contract number was supplied. The result
// depends on nothing else in the record.
func VerifyContract(rec claim.Record) Deterministic {
	if rec.HasContract() {
		return Deterministic{
			Result:      Correct,
			Explanation: fmt.Sprintf("Contract number is provided (%s). %s", strings.TrimSpace(rec.ContractNumber), nameReminder),
			Sources:     []string{},
		}
	}
	return Deterministic{
		Result:      Incorrect,
		Explanation: "Contract number is not provided (missing). " + nameReminder,
		Sources:     []string{},
	}
}
