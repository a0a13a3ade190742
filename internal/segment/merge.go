package segment

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

const (
	// DefaultReasonLimit - предел длины сводной причины (в символах).
	DefaultReasonLimit = 500

	defaultConfidence = 0.5
	truncatedMarker   = " (truncated)"
	reasonSeparator   = "; "
)

// Merger сводит вердикты по сегментам в один вердикт по главе.
type Merger struct {
	ReasonLimit int
}

func NewMerger(reasonLimit int) *Merger {
	if reasonLimit <= 0 {
		reasonLimit = DefaultReasonLimit
	}
	return &Merger{ReasonLimit: reasonLimit}
}

// Merge - приоритет статусов REJECTED > PENDING > PASSED.
// Confidence - среднее по сегментам, которые его вернули (0.5 если никто), округление half-up до 0.01.
func (m *Merger) Merge(verdicts []domain.SegmentVerdict, total int) domain.Verdict {
	if len(verdicts) == 0 {
		return domain.Verdict{
			Status:     domain.StatusPending,
			Confidence: defaultConfidence,
			Reason:     "no segment results",
		}
	}

	status := domain.StatusPassed
	for _, v := range verdicts {
		if v.Status.Severity() > status.Severity() {
			status = v.Status
		}
	}

	reason := m.buildReason(verdicts, total)
	if reason == "" {
		reason = status.String()
	}

	return domain.Verdict{
		Status:     status,
		Confidence: averageConfidence(verdicts),
		Reason:     reason,
	}
}

// Merge с пределом причины по умолчанию.
func Merge(verdicts []domain.SegmentVerdict, total int) domain.Verdict {
	return NewMerger(DefaultReasonLimit).Merge(verdicts, total)
}

func averageConfidence(verdicts []domain.SegmentVerdict) float64 {
	sum := new(big.Rat)
	count := 0
	for _, v := range verdicts {
		if v.Confidence == nil {
			continue
		}
		sum.Add(sum, decimalRat(*v.Confidence))
		count++
	}
	if count == 0 {
		return defaultConfidence
	}
	sum.Quo(sum, big.NewRat(int64(count), 1))
	return RoundHalfUp(sum, 2)
}

// decimalRat переводит float в точную десятичную дробь по его кратчайшей записи (0.7 -> 7/10).
func decimalRat(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(f)
	}
	return r
}

// RoundHalfUp округляет неотрицательную дробь до places знаков, половина - вверх.
func RoundHalfUp(r *big.Rat, places int) float64 {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	scaled.Add(scaled, big.NewRat(1, 2))
	floor := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	out, _ := new(big.Rat).SetFrac(floor, scale).Float64()
	return out
}

// RoundConfidence - округление одиночного значения тем же правилом.
func RoundConfidence(f float64) float64 {
	return RoundHalfUp(decimalRat(f), 2)
}

func (m *Merger) buildReason(verdicts []domain.SegmentVerdict, total int) string {
	var rejected, pending []domain.SegmentVerdict
	passed := 0
	for _, v := range verdicts {
		switch v.Status {
		case domain.StatusRejected:
			rejected = append(rejected, v)
		case domain.StatusPending:
			pending = append(pending, v)
		default:
			passed++
		}
	}

	if passed == len(verdicts) {
		return fmt.Sprintf("all %d segments passed", max(total, len(verdicts)))
	}

	limit := m.ReasonLimit
	budget := limit - utf8.RuneCountInString(truncatedMarker)

	var b strings.Builder
	length := 0
	truncated := false
	for _, group := range [][]domain.SegmentVerdict{rejected, pending} {
		for _, v := range group {
			part := fmt.Sprintf("segment %d: %s", v.Ordinal, reasonOrLabel(v))
			add := utf8.RuneCountInString(part)
			if length > 0 {
				add += len(reasonSeparator)
			}
			if length+add > budget {
				if length == 0 {
					head := Truncate(part, budget)
					b.WriteString(head)
					length = utf8.RuneCountInString(head)
				}
				truncated = true
				break
			}
			if length > 0 {
				b.WriteString(reasonSeparator)
			}
			b.WriteString(part)
			length += add
		}
		if truncated {
			b.WriteString(truncatedMarker)
			length += utf8.RuneCountInString(truncatedMarker)
			break
		}
	}

	if passed > 0 {
		note := fmt.Sprintf(" (%d segments passed)", passed)
		if length+utf8.RuneCountInString(note) <= limit {
			b.WriteString(note)
		}
	}

	return Truncate(b.String(), limit)
}

func reasonOrLabel(v domain.SegmentVerdict) string {
	if r := strings.TrimSpace(v.Reason); r != "" {
		return r
	}
	return v.Status.String()
}

// Truncate обрезает строку до limit символов, заканчивая многоточием.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
