package pagination

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"review_platform/platform/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupUsers(t *testing.T, n int) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.User{}))

	for i := 0; i < n; i++ {
		user := schema.User{
			Id:    uuid.New(),
			Name:  fmt.Sprintf("user-%02d", i),
			Email: fmt.Sprintf("user-%02d@mail.com", i),
			Role:  schema.RoleSme,
		}
		require.NoError(t, db.Create(&user).Error)
	}

	return db
}

func TestParseParams(t *testing.T) {
	parse := func(query string) (Params, error) {
		return ParseParams(httptest.NewRequest("GET", "/list"+query, nil))
	}

	params, err := parse("")
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 1, PerPage: DefaultPerPage}, params)

	params, err = parse("?page=3&per_page=50&sort_field=name&sort_order=DESC&search_term=abc")
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 3, PerPage: 50, SortField: "name", SortOrder: "desc", SearchTerm: "abc"}, params)

	params, err = parse("?page=0&per_page=1000")
	require.NoError(t, err)
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, MaxPerPage, params.PerPage)

	_, err = parse("?sort_order=sideways")
	assert.Error(t, err)

	_, err = parse("?page=abc")
	assert.Error(t, err)
}

func TestPaginate(t *testing.T) {
	db := setupUsers(t, 5)

	whitelist := Whitelist{
		Fields:       map[string]string{"name": "name"},
		DefaultOrder: "name asc",
	}

	page, err := Paginate[schema.User](db.Model(&schema.User{}), Params{Page: 1, PerPage: 2}, whitelist)
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "user-00", page.Items[0].Name)

	page, err = Paginate[schema.User](db.Model(&schema.User{}), Params{Page: 3, PerPage: 2}, whitelist)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "user-04", page.Items[0].Name)

	// Pages past the end are empty, not an error.
	page, err = Paginate[schema.User](db.Model(&schema.User{}), Params{Page: 10, PerPage: 2}, whitelist)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 5, page.TotalCount)
}

func TestPaginateSortWhitelist(t *testing.T) {
	db := setupUsers(t, 3)

	whitelist := Whitelist{
		Fields:       map[string]string{"name": "name", "email": "email"},
		DefaultOrder: "name asc",
	}

	page, err := Paginate[schema.User](
		db.Model(&schema.User{}), Params{Page: 1, PerPage: 10, SortField: "name", SortOrder: "desc"}, whitelist,
	)
	require.NoError(t, err)
	assert.Equal(t, "user-02", page.Items[0].Name)

	_, err = Paginate[schema.User](
		db.Model(&schema.User{}), Params{Page: 1, PerPage: 10, SortField: "password"}, whitelist,
	)
	assert.Error(t, err)
}
