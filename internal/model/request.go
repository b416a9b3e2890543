package model

type BookCreateRequest struct {
	ISBN      string `json:"isbn" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author" validate:"required"`
	Publisher string `json:"publisher" validate:"required"`
	Edition   int    `json:"edition" validate:"required,gte=1"`
	Year      int    `json:"year" validate:"required,gte=0"`
	Quantity  int    `json:"quantity" validate:"omitempty,gte=1"`
}

type BookUpdateRequest struct {
	Title     *string `json:"title" validate:"omitempty,min=1"`
	Author    *string `json:"author" validate:"omitempty,min=1"`
	Publisher *string `json:"publisher" validate:"omitempty,min=1"`
	Edition   *int    `json:"edition" validate:"omitempty,gte=1"`
	Year      *int    `json:"year" validate:"omitempty,gte=0"`
	Quantity  *int    `json:"quantity" validate:"omitempty,gte=0"`
}
