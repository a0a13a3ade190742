package domain

// Verdict - тройка {status, confidence, reason} от классификатора или слияния сегментов.
type Verdict struct {
	Status     AuditStatus `json:"status"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`

	// Refused - модель сама отказалась обрабатывать текст (content-safety).
	// Такой вердикт окончательный, оставшиеся сегменты не проверяются.
	Refused bool `json:"-"`

	// HasConfidence - модель действительно вернула aiConfidence (а не подставлено значение по умолчанию).
	HasConfidence bool `json:"-"`
}

// SegmentVerdict - результат по одному сегменту главы. Confidence nil, если модель его не вернула.
type SegmentVerdict struct {
	Ordinal    int
	Status     AuditStatus
	Confidence *float64
	Reason     string
}
