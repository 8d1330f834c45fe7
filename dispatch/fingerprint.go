package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/BaSui01/textflow/types"
)

// Fingerprint derives the identity of a unit of work from the session,
// function type, model, and a hash of the effective prompt content.
//
// Hashing the rendered prompt rather than the raw selection means that
// editing a custom template invalidates previously cached results even
// when the model stays the same.
func Fingerprint(sessionID string, functionType types.FunctionType, modelID string, messages []types.Message) types.Fingerprint {
	promptHash := hashMessages(messages)

	inputs, _ := json.Marshal([]string{
		sessionID,
		string(functionType),
		modelID,
		promptHash,
	})
	sum := sha256.Sum256(inputs)
	return types.Fingerprint(hex.EncodeToString(sum[:]))
}

func hashMessages(messages []types.Message) string {
	data, _ := json.Marshal(messages)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
