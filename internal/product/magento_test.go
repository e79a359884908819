package product

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagentoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/V1/products", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "%ring%", q.Get("searchCriteria[filterGroups][0][filters][0][value]"))
		assert.Equal(t, "like", q.Get("searchCriteria[filterGroups][0][filters][0][conditionType]"))
		assert.Equal(t, "2", q.Get("searchCriteria[pageSize]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"sku":"R1","name":"Silver ring","price":19.5,"custom_attributes":[
				{"attribute_code":"url_key","value":"silver-ring"},
				{"attribute_code":"short_description","value":"<p>Sterling silver</p>"}]},
			{"sku":"R2","name":"Gold ring","price":99,"custom_attributes":[]}
		],"total_count":2}`))
	}))
	defer srv.Close()

	src := NewMagentoSource(&config.MagentoConfig{BaseURL: srv.URL + "/", Token: "tok"})
	products, err := src.Search(context.Background(), "ring", 2)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "R1", products[0].SKU)
	assert.Equal(t, 19.5, products[0].Price)
	assert.Equal(t, srv.URL+"/silver-ring.html", products[0].URL)
	assert.Equal(t, "Sterling silver", products[0].Description)
	assert.Empty(t, products[1].URL)
}

func TestMagentoSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewMagentoSource(&config.MagentoConfig{BaseURL: srv.URL})
	_, err := src.Search(context.Background(), "ring", 3)
	assert.Error(t, err)

	products, err := src.Search(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, products)
}
