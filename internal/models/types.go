package models

// Sentinels stored when a field cannot be extracted.
const (
	Unavailable = "N/A"
	Untitled    = "Sin título"
)

// PostRecord is one scraped blog post.
type PostRecord struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ReadingTime   string `json:"readingTime"`
	PublishedDate string `json:"publishedDate"`
	URL           string `json:"url"`
	Category      string `json:"category"`
}

// Blank reports whether every field other than the URL and category is a sentinel.
func (p PostRecord) Blank() bool {
	return (p.Title == Untitled || p.Title == "") &&
		p.Author == Unavailable &&
		p.ReadingTime == Unavailable &&
		p.PublishedDate == Unavailable
}

// CategoryResult maps category names to their posts, remembering the order in
// which categories were added.
type CategoryResult struct {
	order []string
	posts map[string][]PostRecord
}

func NewCategoryResult() *CategoryResult {
	return &CategoryResult{posts: map[string][]PostRecord{}}
}

// Set stores posts for a category. Setting an existing category replaces its
// posts but keeps its original position.
func (r *CategoryResult) Set(category string, posts []PostRecord) {
	if r.posts == nil {
		r.posts = map[string][]PostRecord{}
	}
	if _, ok := r.posts[category]; !ok {
		r.order = append(r.order, category)
	}
	if posts == nil {
		posts = []PostRecord{}
	}
	r.posts[category] = posts
}

func (r *CategoryResult) Categories() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *CategoryResult) Posts(category string) []PostRecord {
	return r.posts[category]
}

func (r *CategoryResult) Len() int { return len(r.order) }

// Total counts posts across every category.
func (r *CategoryResult) Total() int {
	n := 0
	for _, p := range r.posts {
		n += len(p)
	}
	return n
}
