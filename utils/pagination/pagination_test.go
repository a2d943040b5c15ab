package pagination

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndBuildPagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		params := ParsePaginationParams(c)
		if err := ValidatePaginationParams(params); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		return c.JSON(NewPaginatedResponse(c, []int{1, 2}, 25, params))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://api.test/items?page=2&page_size=5&status=completed&start_date=null&end_date=", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload PaginatedResponse
	require.NoError(t, json.Unmarshal(body, &payload))

	meta := payload.Pagination
	assert.Equal(t, 2, meta.CurrentPage)
	assert.Equal(t, 5, meta.PageSize)
	assert.Equal(t, 5, meta.TotalPages)
	assert.Equal(t, int64(25), meta.TotalItems)
	require.NotNil(t, meta.NextPage)
	assert.Equal(t, "http://api.test/items?page_size=5&status=completed&page=3", *meta.NextPage)
	require.NotNil(t, meta.PrevPage)
	assert.Equal(t, "http://api.test/items?page_size=5&status=completed&page=1", *meta.PrevPage)
}

func TestValidatePaginationParams(t *testing.T) {
	assert.NoError(t, ValidatePaginationParams(PaginationParams{Page: 1, PageSize: DefaultPageSize}))
	assert.Error(t, ValidatePaginationParams(PaginationParams{Page: 0, PageSize: 10}))
	assert.Error(t, ValidatePaginationParams(PaginationParams{Page: 1, PageSize: 0}))
	assert.Error(t, ValidatePaginationParams(PaginationParams{Page: 1, PageSize: MaxPageSize + 1}))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, PaginationParams{Page: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, PaginationParams{Page: 3, PageSize: 10}.Offset())
}
