package model

// PageParams are the normalized listing inputs shared by every entity.
type PageParams struct {
	Limit     int
	Offset    int
	Search    string
	SortBy    string
	SortOrder string
}

const DefaultPageLimit = 10

func (p *PageParams) Normalize() {
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.SortOrder == "" {
		p.SortOrder = "asc"
	}
}

type LoanQueryParams struct {
	PageParams
	Status string
}

type PageMeta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Size       int  `json:"size"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
	Offset     int  `json:"offset"`
}

func NewPageMeta(total, limit, offset int) PageMeta {
	return PageMeta{
		Total:      total,
		Page:       offset/limit + 1,
		Size:       limit,
		TotalPages: (total + limit - 1) / limit,
		HasNext:    offset+limit < total,
		HasPrev:    offset > 0,
		Offset:     offset,
	}
}

type BookPage struct {
	Meta  PageMeta `json:"meta"`
	Books []Book   `json:"books"`
}

type LoanPage struct {
	Meta  PageMeta `json:"meta"`
	Loans []Loan   `json:"loans"`
}
