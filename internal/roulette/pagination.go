package roulette

// Paginate returns the 1-based page slice [(page-1)*pageSize, page*pageSize)
// clamped to the input bounds. Out-of-range pages yield an empty slice.
func Paginate[T any](items []T, pageSize, page int) []T {
	if pageSize <= 0 || page <= 0 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// TotalPages reports ceil(len(items)/pageSize), never below one so an empty
// list still displays a single page.
func TotalPages[T any](items []T, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	pages := (len(items) + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// Pager tracks the current page over a changing item list. It resets to the
// first page whenever the item count changes so new data never leaves the
// view stuck on a stale page.
type Pager struct {
	pageSize  int
	page      int
	itemCount int
}

// NewPager builds a pager on page one.
func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Pager{pageSize: pageSize, page: 1}
}

// Sync informs the pager of the current item count, resetting to page one on
// any change.
func (p *Pager) Sync(itemCount int) {
	if itemCount != p.itemCount {
		p.itemCount = itemCount
		p.page = 1
	}
}

// Page returns the current 1-based page.
func (p *Pager) Page() int {
	return p.page
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// TotalPages reports the page count for the synced item count, minimum one.
func (p *Pager) TotalPages() int {
	pages := (p.itemCount + p.pageSize - 1) / p.pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// Next advances one page, clamped to the last page.
func (p *Pager) Next() {
	if p.CanGoNext() {
		p.page++
	}
}

// Previous steps back one page, clamped to the first page.
func (p *Pager) Previous() {
	if p.CanGoPrevious() {
		p.page--
	}
}

// GoTo jumps to a page when it is within bounds.
func (p *Pager) GoTo(page int) {
	if page >= 1 && page <= p.TotalPages() {
		p.page = page
	}
}

// CanGoNext reports whether a further page exists.
func (p *Pager) CanGoNext() bool {
	return p.page < p.TotalPages()
}

// CanGoPrevious reports whether an earlier page exists.
func (p *Pager) CanGoPrevious() bool {
	return p.page > 1
}
