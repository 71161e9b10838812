package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Operand bounds shared by every task kind, [NumMin, NumMax)
const (
	NumMin uint64 = 1000000000
	NumMax uint64 = 9999999999
)

// Kind defines the exercise kind of a task
type Kind uint8

// Task kinds, in the order the generator indexes them
const (
	KindGCD Kind = iota
	KindSUM
	KindXK
	KindStringDeletion
	KindStringConcat

	// KindCount is the number of known kinds
	KindCount = 5
)

var kindNames = [...]string{"GCD", "SUM", "XK", "SD", "SC"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText encodes kind as its short name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes kind from its short name
func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown task kind %q", string(b))
}

// Task is one generated exercise. The set of implementations is closed:
// *GCD, *SUM, *XK, *StringDeletion and *StringConcat.
type Task interface {
	// Kind returns the exercise kind
	Kind() Kind
	// Given returns the operands sent to the client, in wire order
	Given() []string
	// Expected returns the answer text the client must send back
	Expected() string
	// Describe returns the assignment text shown to the student
	Describe() string

	isTask()
}

// Verify reports whether answer is exactly the expected result of t
func Verify(t Task, answer []byte) bool {
	return string(answer) == t.Expected()
}

// GCD asks for the greatest common divisor of 2 to 5 numbers
type GCD struct {
	Numbers []uint64 `json:"numbers" yaml:"numbers"`
	Result  uint64   `json:"result" yaml:"result"`
}

// SUM asks for the sum of exactly 3 numbers
type SUM struct {
	Numbers [3]uint64 `json:"numbers" yaml:"numbers"`
	Result  uint64    `json:"result" yaml:"result"`
}

// XK asks for the largest k with k^Power <= X
type XK struct {
	X      uint64 `json:"x" yaml:"x"`
	Power  uint8  `json:"power" yaml:"power"`
	Result uint64 `json:"result" yaml:"result"`
}

// StringDeletion asks to remove every occurrence of Del from Target
type StringDeletion struct {
	Target string `json:"target" yaml:"target"`
	Del    rune   `json:"del" yaml:"del"`
	Result string `json:"result" yaml:"result"`
}

// StringConcat asks to write Target twice
type StringConcat struct {
	Target string `json:"target" yaml:"target"`
	Result string `json:"result" yaml:"result"`
}

func (*GCD) Kind() Kind            { return KindGCD }
func (*SUM) Kind() Kind            { return KindSUM }
func (*XK) Kind() Kind             { return KindXK }
func (*StringDeletion) Kind() Kind { return KindStringDeletion }
func (*StringConcat) Kind() Kind   { return KindStringConcat }

func (t *GCD) Given() []string { return formatNumbers(t.Numbers) }
func (t *SUM) Given() []string { return formatNumbers(t.Numbers[:]) }
func (t *XK) Given() []string  { return []string{strconv.FormatUint(t.X, 10)} }
func (t *StringDeletion) Given() []string {
	return []string{t.Target}
}
func (t *StringConcat) Given() []string { return []string{t.Target} }

func (t *GCD) Expected() string            { return strconv.FormatUint(t.Result, 10) }
func (t *SUM) Expected() string            { return strconv.FormatUint(t.Result, 10) }
func (t *XK) Expected() string             { return strconv.FormatUint(t.Result, 10) }
func (t *StringDeletion) Expected() string { return t.Result }
func (t *StringConcat) Expected() string   { return t.Result }

func (t *GCD) Describe() string {
	return fmt.Sprintf("[GCD] Receive %[1]d natural numbers in %[1]d consecutive lines. Compute their greatest common divisor and send it back.", len(t.Numbers))
}

func (t *SUM) Describe() string {
	return fmt.Sprintf("[SUM] Receive %[1]d natural numbers in %[1]d consecutive lines. Compute their sum and send it back.", len(t.Numbers))
}

func (t *XK) Describe() string {
	return fmt.Sprintf("[XK] Receive a natural number x. Compute the largest natural number k such that k to the power of %d is not greater than x. Send k back.", t.Power)
}

func (t *StringDeletion) Describe() string {
	return fmt.Sprintf("[SD] Receive a string. Remove every occurrence of %c from it and send the result back.", t.Del)
}

func (t *StringConcat) Describe() string {
	return "[SC] Receive one line of text. Concatenate the text with itself and send the result back."
}

func (*GCD) isTask()            {}
func (*SUM) isTask()            {}
func (*XK) isTask()             {}
func (*StringDeletion) isTask() {}
func (*StringConcat) isTask()   {}

func formatNumbers(n []uint64) []string {
	rt := make([]string, 0, len(n))
	for _, v := range n {
		rt = append(rt, strconv.FormatUint(v, 10))
	}
	return rt
}

// DeleteRune removes every occurrence of r from s, keeping the order of the rest
func DeleteRune(s string, r rune) string {
	return strings.ReplaceAll(s, string(r), "")
}
