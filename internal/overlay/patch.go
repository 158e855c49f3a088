package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrBadPatch is returned when a recognised field carries the wrong type.
var ErrBadPatch = errors.New("bad state patch")

// Patch is a partial state update. Nil fields are left untouched. Derived
// fields (win/loss, PB, average, seeds) are not patchable.
type Patch struct {
	PlayerLeft  *string `json:"playerLeft,omitempty"`
	PlayerRight *string `json:"playerRight,omitempty"`
	ScoreLeft   *int    `json:"scoreLeft,omitempty"`
	ScoreRight  *int    `json:"scoreRight,omitempty"`
	Round       *string `json:"round,omitempty"`
	BestOf      *string `json:"bestOf,omitempty"`
	Level       *string `json:"level,omitempty"`
	Caster1     *string `json:"caster1,omitempty"`
	Caster2     *string `json:"caster2,omitempty"`
	Caster3     *string `json:"caster3,omitempty"`
}

// field binds a wire key to its Patch slot.
type field struct {
	key string
	str func(*Patch) **string
	num func(*Patch) **int
}

var patchFields = []field{
	{key: "playerLeft", str: func(p *Patch) **string { return &p.PlayerLeft }},
	{key: "playerRight", str: func(p *Patch) **string { return &p.PlayerRight }},
	{key: "scoreLeft", num: func(p *Patch) **int { return &p.ScoreLeft }},
	{key: "scoreRight", num: func(p *Patch) **int { return &p.ScoreRight }},
	{key: "round", str: func(p *Patch) **string { return &p.Round }},
	{key: "bestOf", str: func(p *Patch) **string { return &p.BestOf }},
	{key: "level", str: func(p *Patch) **string { return &p.Level }},
	{key: "caster1", str: func(p *Patch) **string { return &p.Caster1 }},
	{key: "caster2", str: func(p *Patch) **string { return &p.Caster2 }},
	{key: "caster3", str: func(p *Patch) **string { return &p.Caster3 }},
}

// PatchKeys lists every key a patch may set, in schema order.
func PatchKeys() []string {
	keys := make([]string, len(patchFields))
	for i, f := range patchFields {
		keys[i] = f.key
	}
	return keys
}

// DecodePatch parses a JSON object into a Patch. Keys outside the schema are
// skipped and returned, sorted, so callers can report them. A known key with
// the wrong JSON type fails the whole patch.
func DecodePatch(data []byte) (Patch, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Patch{}, nil, fmt.Errorf("%w: %v", ErrBadPatch, err)
	}

	var p Patch
	known := make(map[string]bool, len(patchFields))
	for _, f := range patchFields {
		known[f.key] = true
		msg, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := f.decode(&p, msg); err != nil {
			return Patch{}, nil, err
		}
	}

	var ignored []string
	for k := range raw {
		if !known[k] {
			ignored = append(ignored, k)
		}
	}
	sort.Strings(ignored)
	return p, ignored, nil
}

func (f field) decode(p *Patch, msg json.RawMessage) error {
	if f.str != nil {
		var v string
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("%w: %s must be a string", ErrBadPatch, f.key)
		}
		*f.str(p) = &v
		return nil
	}
	var v int
	if err := json.Unmarshal(msg, &v); err != nil {
		return fmt.Errorf("%w: %s must be an integer", ErrBadPatch, f.key)
	}
	*f.num(p) = &v
	return nil
}

// Set assigns one field by wire key from its text form, as typed at a
// prompt or on the command line.
func (p *Patch) Set(key, value string) error {
	for _, f := range patchFields {
		if f.key != key {
			continue
		}
		if f.str != nil {
			v := value
			*f.str(p) = &v
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", ErrBadPatch, key)
		}
		*f.num(p) = &n
		return nil
	}
	return fmt.Errorf("%w: unknown field %q", ErrBadPatch, key)
}

// Empty reports whether the patch sets nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply merges p into st, last write wins per field.
func (p Patch) Apply(st State) State {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&st.PlayerLeft, p.PlayerLeft)
	set(&st.PlayerRight, p.PlayerRight)
	set(&st.Round, p.Round)
	set(&st.BestOf, p.BestOf)
	set(&st.Level, p.Level)
	set(&st.Caster1, p.Caster1)
	set(&st.Caster2, p.Caster2)
	set(&st.Caster3, p.Caster3)
	if p.ScoreLeft != nil {
		st.ScoreLeft = *p.ScoreLeft
	}
	if p.ScoreRight != nil {
		st.ScoreRight = *p.ScoreRight
	}
	return st
}
