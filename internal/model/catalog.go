package model

import "time"

// CatalogDocument is a published wallpaper as stored in the document store.
type CatalogDocument struct {
	ID          string    `json:"id" dynamodbav:"id"`
	Title       string    `json:"title" dynamodbav:"title"`
	Description string    `json:"description" dynamodbav:"description"`
	Category    string    `json:"category" dynamodbav:"category"`
	Tags        []string  `json:"tags" dynamodbav:"tags,stringset,omitempty"`
	Price       float64   `json:"price" dynamodbav:"price"`
	ImageURL    string    `json:"imageUrl" dynamodbav:"image_url"`
	Dimensions  string    `json:"dimensions,omitempty" dynamodbav:"dimensions,omitempty"`
	CreatedAt   time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// DocumentFromMetadata builds an unsaved catalog document.
func DocumentFromMetadata(id, imageURL string, md Metadata, now time.Time) CatalogDocument {
	md = md.Clone()
	if md.Tags == nil {
		md.Tags = []string{}
	}
	return CatalogDocument{
		ID:          id,
		Title:       md.Title,
		Description: md.Description,
		Category:    md.Category,
		Tags:        md.Tags,
		Price:       md.Price,
		ImageURL:    imageURL,
		Dimensions:  md.Dimensions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
