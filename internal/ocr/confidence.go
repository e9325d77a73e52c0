package ocr

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	reToken      = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9\-/.]{3,}`)
	reMixedToken = regexp.MustCompile(`\b(?:[A-Za-z]+[0-9]|[0-9]+[A-Za-z])[A-Za-z0-9]*\b`)
)

// heuristicConfidence scores decoded text by how much it looks like a printed code.
func heuristicConfidence(txt string) float32 {
	if !HasSignal(txt) {
		return 0
	}
	score := float32(0.2)
	if reToken.MatchString(txt) {
		score += 0.25
	}
	if reMixedToken.MatchString(txt) {
		score += 0.15
	}
	if r := alnumRatio(txt); r >= 0.8 {
		score += 0.2
	} else if r >= 0.6 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func alnumRatio(s string) float64 {
	var alnum, visible int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if visible == 0 {
		return 0
	}
	return float64(alnum) / float64(visible)
}

// meanWordConfidence parses tesseract TSV output and returns mean word conf in 0..1.
// ok is false when no word row carried a confidence.
func meanWordConfidence(tsv []byte) (float32, bool) {
	lines := strings.Split(string(tsv), "\n")
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		} // header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		if strings.TrimSpace(cols[11]) == "" {
			continue
		} // structural rows carry no text
		confStr := strings.TrimSpace(cols[10])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float32(sum / n / 100.0), true
}

// blend weights the engine score over the heuristic when the engine reported one.
func blend(engine float32, engineOK bool, heuristic float32) float32 {
	conf := heuristic
	if engineOK {
		conf = 0.7*engine + 0.3*heuristic
	}
	if conf > 1.0 {
		conf = 1.0
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}
