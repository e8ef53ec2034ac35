package vimeo

// DefaultCategories maps category labels to Vimeo category URIs.
var DefaultCategories = map[string]string{
	"animation":        "/categories/art",
	"art and design":   "/categories/art",
	"camera and photo": "/categories/cameratechniques",
	"comedy":           "/categories/comedy",
	"documentary":      "/categories/documentary",
	"experimental":     "/categories/experimental",
	"fashion":          "/categories/fashion",
	"food":             "/categories/food",
	"instructionals":   "/categories/instructionals",
	"music":            "/categories/music",
	"narrative":        "/categories/narrative",
	"personal":         "/categories/personal",
	"journalism":       "/categories/journalism",
	"sports":           "/categories/sports",
	"talks":            "/categories/talks",
	"travel":           "/categories/travel",
}
