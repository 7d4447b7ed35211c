// Package numberset turns an uploaded sheet plus manual additions and
// exclusions into the frozen recipient list of a campaign.
package numberset

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// MaxBlockLines bounds the additional and exclude blocks.
const MaxBlockLines = 1000

type Input struct {
	Sheet      io.Reader
	Filename   string
	Additional string
	Exclude    string
}

// Stats is informational feedback; it never gates creation.
type Stats struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Empty      int `json:"empty"`
	Duplicates int `json:"duplicates"`
	Excluded   int `json:"excluded"`
	Final      int `json:"final"`
}

type Result struct {
	Numbers []string
	Stats   Stats
}

// Build returns the delivery set: file order, then additional order, with
// excludes applied last and duplicates collapsed by exact string equality.
func Build(in Input) (*Result, error) {
	res, err := collect(in)
	if err != nil {
		return nil, err
	}
	if len(res.Numbers) == 0 {
		return nil, domain.ErrEmptyNumberSet
	}
	return res, nil
}

// Preview is Build without the empty-set failure.
func Preview(in Input) (Stats, error) {
	res, err := collect(in)
	if err != nil {
		return Stats{}, err
	}
	return res.Stats, nil
}

func collect(in Input) (*Result, error) {
	cells, err := ExtractCells(in.Sheet, in.Filename)
	if err != nil {
		return nil, err
	}
	additional, err := ParseBlock(in.Additional)
	if err != nil {
		return nil, fmt.Errorf("additional numbers: %w", err)
	}
	exclude, err := ParseBlock(in.Exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude numbers: %w", err)
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		if n := domain.NormalizePhone(e); n != "" {
			excluded[n] = struct{}{}
		}
	}

	res := &Result{Numbers: make([]string, 0)}
	seen := make(map[string]struct{})

	add := func(raw string) {
		candidate := domain.NormalizePhone(raw)
		res.Stats.Total++

		switch domain.ClassifyPhone(candidate) {
		case domain.PhoneEmpty:
			res.Stats.Empty++
			return
		case domain.PhoneInvalid:
			res.Stats.Invalid++
			return
		}
		res.Stats.Valid++

		if _, ok := excluded[candidate]; ok {
			res.Stats.Excluded++
			return
		}
		if _, ok := seen[candidate]; ok {
			res.Stats.Duplicates++
			return
		}
		seen[candidate] = struct{}{}
		res.Numbers = append(res.Numbers, candidate)
	}

	for _, cell := range cells {
		add(cell)
	}
	for _, line := range additional {
		add(line)
	}

	res.Stats.Final = len(res.Numbers)
	return res, nil
}

// ParseBlock splits a newline-delimited block into trimmed lines, skipping
// blank ones.
func ParseBlock(block string) ([]string, error) {
	out := make([]string, 0)
	scanner := bufio.NewScanner(strings.NewReader(block))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(out) == MaxBlockLines {
			return nil, fmt.Errorf("%w: at most %d lines allowed", domain.ErrValidation, MaxBlockLines)
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return out, nil
}
