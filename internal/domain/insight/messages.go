package insight

import (
	"errors"
	"fmt"

	apperrors "github.com/yanqian/flarecast/pkg/errors"
)

const (
	analyzingMessage = "Analyzing how the weather lines up with your symptoms..."
	updatingMessage  = "Updating your insights..."
)

// Outcome labels reported to the Observer.
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeSuperseded      = "superseded"
	OutcomeEncodingFailure = "encoding_failure"
)

// failureMessage maps an analysis failure onto the text shown to the user.
func failureMessage(err error, backend string) string {
	switch apperrors.CodeOf(err) {
	case CodeTransportUnreachable, CodeTransportTimeout:
		return fmt.Sprintf("Unable to reach the analysis service at %s. Check your internet connection and try again.", backend)
	case CodeServerError:
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if detail := serverDetail(statusErr.Body); detail != "" {
				return "Analysis failed: " + detail
			}
			return fmt.Sprintf("Analysis failed: the analysis service at %s returned status %d.", backend, statusErr.StatusCode)
		}
		return fmt.Sprintf("Analysis failed: the analysis service at %s returned an error.", backend)
	case CodeMalformedResponse:
		return "Analysis failed: the analysis service returned an unexpected response."
	case CodeEncodingFailure:
		return "Analysis failed: the request could not be prepared."
	default:
		return "Analysis failed. Please try again."
	}
}
