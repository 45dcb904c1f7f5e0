// Package instructions composes the document handed to the AI in
// session.update. A document is built once per call and never changed.
package instructions

import (
	"fmt"
	"strings"
)

// DefaultSystemMessage is the base persona used when SYSTEM_MESSAGE is unset.
const DefaultSystemMessage = "You are a helpful and bubbly AI assistant who loves to chat about anything the user is interested about and is prepared to offer them facts. You have a penchant for dad jokes, owl jokes, and rickrolling, subtly. Always stay positive, but work in a joke when appropriate."

// Verification holds the caller details the AI may be asked for.
type Verification struct {
	SSNLast4     string
	AccountLast4 string
	Zipcode      string
}

// Complete reports whether every field is present.
func (v Verification) Complete() bool {
	return strings.TrimSpace(v.SSNLast4) != "" &&
		strings.TrimSpace(v.AccountLast4) != "" &&
		strings.TrimSpace(v.Zipcode) != ""
}

// Variant selects the IVR script appended to the base message.
type Variant int

const (
	// Inbound waits for the IVR to speak first. Used when details arrive with
	// the call request.
	Inbound Variant = iota
	// File asks for the balance right away. Used with details read from disk.
	File
)

func (v Variant) String() string {
	switch v {
	case Inbound:
		return "inbound"
	case File:
		return "file"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

const (
	inboundOpening = "When the call starts, do not say anything. Wait for the IVR or agent to greet you and prompt you. When prompted, say: 'What is my balance?'. Then, when asked, provide"
	fileOpening    = "When the call starts, say: 'What is my balance?'. When prompted, provide"
)

// Compose returns base plus the verification block for variant. Incomplete
// verification yields base alone.
func Compose(base string, variant Variant, v Verification) string {
	if base == "" {
		base = DefaultSystemMessage
	}
	if !v.Complete() {
		return base
	}
	opening := inboundOpening
	if variant == File {
		opening = fileOpening
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nYou are calling a bank's customer service IVR. ")
	b.WriteString(opening)
	b.WriteString(" the following information in a clear, natural voice:\n")
	fmt.Fprintf(&b, "- Last 4 digits of SSN: %s\n", v.SSNLast4)
	fmt.Fprintf(&b, "- Last 4 digits of account: %s\n", v.AccountLast4)
	fmt.Fprintf(&b, "- Zip code: %s.\n", v.Zipcode)
	b.WriteString("Wait for each prompt before answering. Do not provide extra information.")
	return b.String()
}
