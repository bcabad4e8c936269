package shared

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)

	start, end := NewPagination(3, 20, 45).Bounds()
	assert.Equal(t, 40, start)
	assert.Equal(t, 45, end)

	start, end = NewPagination(9, 20, 45).Bounds()
	assert.Equal(t, 45, start)
	assert.Equal(t, 45, end)

	req := httptest.NewRequest("GET", "/users?page=2&per_page=500", nil)
	p = PaginationFromRequest(req, 250)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
}
