package main

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgryski/go-wyhash"
	"pgregory.net/rand"
)

// adjectives and nouns are combined into field names and word values
var adjectives = []string{
	"able", "bad", "best", "big", "black", "certain", "clear", "different", "early",
	"easy", "free", "full", "good", "great", "hard", "high", "important", "large",
	"late", "little", "local", "long", "low", "major", "new", "old", "other", "public",
	"real", "recent", "right", "small", "special", "strong", "sure", "true", "white",
	"whole", "young",
}

var nouns = []string{
	"angle", "ant", "apple", "arch", "arm", "army", "bag", "ball", "band", "basin",
	"basket", "bath", "bed", "bee", "bell", "berry", "bird", "blade", "board", "boat",
	"bone", "book", "boot", "bottle", "box", "brain", "brake", "branch", "brick",
	"bridge", "brush", "bucket", "bulb", "button", "cake", "camera", "card", "cart",
	"cat", "chain", "cheese", "clock", "cloud", "coat", "collar", "comb", "cord", "cup",
	"curtain", "door", "drain", "drawer", "drop", "engine", "farm", "feather", "fish",
	"flag", "floor", "fork", "frame", "garden", "glove", "hammer", "hook", "horn",
	"house", "island", "kettle", "key", "knife", "knot", "leaf", "library", "line",
	"lock", "map", "match", "moon", "nail", "needle", "net", "nut", "office", "oven",
	"parcel", "pen", "pencil", "pipe", "plane", "plate", "pocket", "pot", "pump",
	"rail", "ring", "rod", "roof", "root", "sail", "screw", "seed", "shelf", "ship",
	"spade", "sponge", "spoon", "spring", "stamp", "star", "station", "stick", "store",
	"street", "table", "thread", "ticket", "train", "tray", "tree", "wall", "watch",
	"wheel", "whistle", "window", "wing", "wire",
}

// Rng is a deterministic random source derived from a string seed, so that
// the same seed always produces the same field names and value sequences.
// It is not safe for concurrent use; each worker gets its own.
type Rng struct {
	rng *rand.Rand
}

func NewRng(s string) Rng {
	return Rng{rand.New(wyhash.Hash([]byte(s), 2467825690))}
}

func (r Rng) Intn(n int) int {
	return r.rng.Intn(n)
}

func (r Rng) Choice(a []string) string {
	return a[r.Intn(len(a))]
}

// Int returns a value in [min, max).
func (r Rng) Int(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.rng.Intn(max-min)
}

func (r Rng) Float(min, max float64) float64 {
	return r.rng.Float64()*(max-min) + min
}

func (r Rng) Gaussian(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

func (r Rng) String(n int) string {
	return r.fromAlphabet("abcdefghijklmnopqrstuvwxyz", n)
}

func (r Rng) HexString(n int) string {
	return r.fromAlphabet("0123456789abcdef", n)
}

func (r Rng) fromAlphabet(alphabet string, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

func (r Rng) WordPair() string {
	return r.Choice(adjectives) + "_" + r.Choice(nouns)
}

// BoolWithProb returns true p percent of the time.
func (r Rng) BoolWithProb(p int) bool {
	return r.Intn(100) < p
}

type fieldGen func() string

// stock generators used for --extra fields
func (r Rng) extraGenerators() []fieldGen {
	return []fieldGen{
		func() string { return strconv.Itoa(r.Intn(100)) },
		func() string { return strconv.Itoa(r.Int(-100, 100)) },
		func() string { return strconv.FormatBool(r.BoolWithProb(50)) },
		func() string { return strconv.FormatBool(r.BoolWithProb(1)) },
		func() string { return strconv.FormatFloat(r.Float(0, 1000), 'f', 3, 64) },
		func() string { return strconv.FormatFloat(r.Gaussian(500, 300), 'f', 1, 64) },
		func() string { return r.String(5) },
		func() string { return r.String(10) },
		func() string { return r.String(4) + "-" + r.HexString(8) + "-" + r.String(4) },
		func() string { return r.HexString(16) },
	}
}

// reservedFields are set on every record by the emitter and the fielder
// itself and can't be overridden from the command line.
var reservedFields = map[string]bool{
	"counter":    true,
	"worker":     true,
	"run_id":     true,
	"process_id": true,
}

var (
	fieldNamePat = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
	// groups:                        1              2          3
	genPat = regexp.MustCompile(`^/([ifbs][rgxw]?|ts)([0-9.-]+)?(,[0-9.-]+)?$`)
)

// parseFieldSpec turns one FIELD=VALUE value into a generator. A value not
// starting with / is a constant; otherwise it's one of
//
//	/i, /ir     int in [0,N) or [N,M) (default 0-100)
//	/ig         gaussian int, mean N stddev M
//	/f, /fr     float in [0,N) or [N,M)
//	/fg         gaussian float
//	/b          bool, true N percent of the time (default 50)
//	/s          lowercase string of length N (default 16)
//	/sx         hex string of length N
//	/sw         one of N word pairs
//	/ts         current time in unix nanoseconds
func parseFieldSpec(rng Rng, name, value string) (fieldGen, error) {
	if !strings.HasPrefix(value, "/") {
		return func() string { return value }, nil
	}
	matches := genPat.FindStringSubmatch(value)
	if matches == nil {
		return nil, fmt.Errorf("unparseable generator %s for field %s", value, name)
	}
	gentype, p1, p2 := matches[1], matches[2], strings.TrimPrefix(matches[3], ",")

	switch gentype {
	case "ts":
		return func() string { return strconv.FormatInt(time.Now().UnixNano(), 10) }, nil
	case "b":
		n, err := optInt(p1, 50)
		if err != nil || n < 0 || n > 100 {
			return nil, fmt.Errorf("invalid bool probability in %s=%s", name, value)
		}
		return func() string { return strconv.FormatBool(rng.BoolWithProb(n)) }, nil
	case "s", "sx", "sw":
		n, err := optInt(p1, 16)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid string length in %s=%s", name, value)
		}
		switch gentype {
		case "sx":
			return func() string { return rng.HexString(n) }, nil
		case "sw":
			words := make([]string, n)
			for i := range words {
				words[i] = rng.WordPair()
			}
			return func() string { return rng.Choice(words) }, nil
		default:
			return func() string { return rng.String(n) }, nil
		}
	case "i", "ir", "ig", "f", "fr", "fg":
		v1, err := optFloat(p1, 0)
		if err != nil {
			return nil, fmt.Errorf("%s is not a number in %s=%s", p1, name, value)
		}
		v2, err := optFloat(p2, 0)
		if err != nil {
			return nil, fmt.Errorf("%s is not a number in %s=%s", p2, name, value)
		}
		if strings.HasSuffix(gentype, "g") {
			mean, stddev := gaussianDefaults(v1, v2)
			if gentype == "ig" {
				return func() string { return strconv.Itoa(int(rng.Gaussian(mean, stddev))) }, nil
			}
			return func() string { return strconv.FormatFloat(rng.Gaussian(mean, stddev), 'f', 3, 64) }, nil
		}
		// a single parameter is the upper bound
		if p2 == "" {
			v1, v2 = 0, v1
		}
		if v1 == 0 && v2 == 0 {
			v2 = 100
		}
		if gentype[0] == 'i' {
			lo, hi := int(v1), int(v2)
			return func() string { return strconv.Itoa(rng.Int(lo, hi)) }, nil
		}
		return func() string { return strconv.FormatFloat(rng.Float(v1, v2), 'f', 3, 64) }, nil
	}
	return nil, fmt.Errorf("invalid generator type %s in field %s", gentype, name)
}

func optInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func optFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func gaussianDefaults(v1, v2 float64) (float64, float64) {
	if v1 == 0 && v2 == 0 {
		v1 = 100
		v2 = 10
	} else if v2 == 0 {
		v2 = v1 / 10
	}
	return v1, v2
}

// Fielder generates the optional extra fields attached to every record:
// user-specified constants and generators plus nextras randomly chosen ones.
// Field names depend only on the seed, so every worker (and every run with
// the same seed) uses the same schema. Values come from a per-worker stream.
type Fielder struct {
	names []string
	gens  []fieldGen
}

func NewFielder(seed string, userFields map[string]string, nextras int, worker int) (*Fielder, error) {
	nameRng := NewRng(seed)
	valueRng := NewRng(seed + "/" + strconv.Itoa(worker))
	f := &Fielder{}

	// map iteration order is random; sort so names and generators line up the
	// same way for every worker
	userNames := make([]string, 0, len(userFields))
	for name := range userFields {
		userNames = append(userNames, name)
	}
	sort.Strings(userNames)
	for _, name := range userNames {
		if !fieldNamePat.MatchString(name) {
			return nil, fmt.Errorf("invalid field name %q", name)
		}
		if reservedFields[name] {
			return nil, fmt.Errorf("field name %q is reserved", name)
		}
		gen, err := parseFieldSpec(valueRng, name, userFields[name])
		if err != nil {
			return nil, err
		}
		f.names = append(f.names, name)
		f.gens = append(f.gens, gen)
	}

	stock := valueRng.extraGenerators()
	for i := 0; i < nextras; i++ {
		f.names = append(f.names, nameRng.WordPair())
		f.gens = append(f.gens, stock[nameRng.Intn(len(stock))])
	}

	pid := strconv.Itoa(os.Getpid())
	f.names = append(f.names, "process_id")
	f.gens = append(f.gens, func() string { return pid })
	return f, nil
}

// AddFields fills fields with one fresh value per configured field.
func (f *Fielder) AddFields(fields map[string]string) {
	for i, name := range f.names {
		fields[name] = f.gens[i]()
	}
}

// Names returns the configured field names in emission order.
func (f *Fielder) Names() []string {
	return f.names
}
