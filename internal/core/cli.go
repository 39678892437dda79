package core

import (
	"fmt"
	"regexp"
	"strings"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type CommandKind int

const (
	CmdSubmit CommandKind = iota
	CmdReceipt
	CmdVerify
	CmdCounter
)

type Command struct {
	Kind CommandKind
	Ref  string
	Note string
}

// refPattern matches a well-formed reference code after uppercasing.
var refPattern = regexp.MustCompile(`^[0-9A-Z]{4}-[0-9A-Z]{3}$`)

// ParseArgs turns CLI arguments into a Command.
//
//	submit <text...>
//	receipt <ref>
//	verify <ref> <text...>
//	counter
func ParseArgs(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<command>", Cause: "expected submit, receipt, verify or counter"}
	}

	switch args[0] {
	case "submit":
		note := strings.Join(args[1:], " ")
		if strings.TrimSpace(note) == "" {
			return nil, &ValidationError{Arg: "<text>", Cause: "nothing to submit"}
		}
		return &Command{Kind: CmdSubmit, Note: note}, nil

	case "receipt":
		if len(args) != 2 {
			return nil, &ValidationError{Arg: "<ref>", Cause: "expected exactly one reference"}
		}
		ref, err := parseRef(args[1])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdReceipt, Ref: ref}, nil

	case "verify":
		if len(args) < 3 {
			return nil, &ValidationError{Arg: "<ref> <text>", Cause: "expected a reference and the original text"}
		}
		ref, err := parseRef(args[1])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdVerify, Ref: ref, Note: strings.Join(args[2:], " ")}, nil

	case "counter":
		if len(args) != 1 {
			return nil, &ValidationError{Arg: args[1], Cause: "counter takes no arguments"}
		}
		return &Command{Kind: CmdCounter}, nil

	default:
		return nil, &ValidationError{Arg: args[0], Cause: "unknown command"}
	}
}

func parseRef(raw string) (string, error) {
	ref := strings.ToUpper(strings.TrimSpace(raw))
	if !refPattern.MatchString(ref) {
		return "", &ValidationError{Arg: raw, Cause: "malformed reference, expected XXXX-XXX"}
	}
	return ref, nil
}
