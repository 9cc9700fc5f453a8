package broadcast

import "strings"

// Outcome is the classified result of one dispatch.
type Outcome int

const (
	Delivered Outcome = iota
	// TransientFailure is expected to be retryable later (rate limit,
	// timeout, temporary network issue). The recipient is retained.
	TransientFailure
	// PermanentFailure means the bot can never reach this recipient again
	// without external reconfiguration (blocked, kicked, deactivated). The
	// recipient is removed.
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient"
	case PermanentFailure:
		return "permanent"
	default:
		return "unknown"
	}
}

// permanentSignatures enumerates the transport error texts that signal a
// permanent loss of access. The Telegram Bot API reports these conditions
// only in the error description, so classification is by substring over the
// lowercased text.
var permanentSignatures = []string{
	"forbidden",
	"bot was blocked",
	"bot was kicked",
	"chat not found",
	"user is deactivated",
	"not enough rights",
}

// Classify maps a dispatch error to an Outcome. A nil error is Delivered;
// anything not matching a permanent signature is transient.
func Classify(err error) Outcome {
	if err == nil {
		return Delivered
	}
	text := strings.ToLower(err.Error())
	for _, sig := range permanentSignatures {
		if strings.Contains(text, sig) {
			return PermanentFailure
		}
	}
	return TransientFailure
}
