package census

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `[
  ["I_COMMODITY","I_COMMODITY_SDESC","GEN_VAL_MO","VES_WGT_MO","CNT_WGT_MO","AIR_WGT_MO","I_COMMODITY","YEAR","MONTH"],
  ["0306170000","SHRIMPS AND PRAWNS, FROZEN","1000","100","50","10","0306170000","2023","12"],
  ["0306170000","SHRIMPS AND PRAWNS, FROZEN","2000",null,"100","20","0306170000","2024","1"]
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second)
}

func TestFetch_BuildsRepeatedYearMonthParams(t *testing.T) {
	var got map[string][]string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(sampleResponse))
	})

	_, err := client.Fetch(context.Background(), Query{
		CommodityCode: "0306170000",
		From:          "2023-11",
		To:            "2024-02",
		Fields:        []string{"I_COMMODITY", "GEN_VAL_MO"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"I_COMMODITY,GEN_VAL_MO"}, got["get"])
	assert.Equal(t, []string{"0306170000"}, got["I_COMMODITY"])
	assert.Equal(t, []string{"test-key"}, got["key"])
	assert.Equal(t, []string{"2023", "2023", "2024", "2024"}, got["YEAR"])
	assert.Equal(t, []string{"11", "12", "01", "02"}, got["MONTH"])
}

func TestFetch_NormalizesColumns(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	})

	res, err := client.Fetch(context.Background(), Query{CommodityCode: "0306170000", From: "2023-12", To: "2024-01"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, []string{
		"I_COMMODITY", "I_COMMODITY_SDESC", "GEN_VAL_MO", "VES_WGT_MO", "CNT_WGT_MO", "AIR_WGT_MO", "MONTH",
	}, res.Table.Header)
	require.Equal(t, 2, res.Table.Len())

	month, ok := res.Table.Cell(0, "MONTH")
	require.True(t, ok)
	assert.Equal(t, "2023-12", month)

	month, _ = res.Table.Cell(1, "MONTH")
	assert.Equal(t, "2024-01", month)

	ves, _ := res.Table.Cell(1, "VES_WGT_MO")
	assert.Equal(t, "", ves, "null cell becomes empty")

	_, ok = res.Table.Cell(0, "YEAR")
	assert.False(t, ok, "YEAR folded into MONTH")
	assert.NotEmpty(t, res.Body)
}

func TestFetch_NumericCellsKeepText(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[["GEN_VAL_MO","MONTH"],[123456789012,"2024-01"]]`))
	})

	res, err := client.Fetch(context.Background(), Query{CommodityCode: "030617", From: "2024-01", To: "2024-01"})
	require.NoError(t, err)
	v, _ := res.Table.Cell(0, "GEN_VAL_MO")
	assert.Equal(t, "123456789012", v)
}

func TestFetch_NoContentIsEmpty(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	res, err := client.Fetch(context.Background(), Query{CommodityCode: "0306170000", From: "2024-01", To: "2024-01"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.Equal(t, http.StatusNoContent, res.HTTPStatus)
}

func TestFetch_HTTPErrorTruncatesBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 2000)))
	})

	res, err := client.Fetch(context.Background(), Query{CommodityCode: "0306170000", From: "2024-01", To: "2024-01"})
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadRequest, fe.StatusCode)
	assert.Len(t, fe.Body, 500)
	require.NotNil(t, res)
	assert.Len(t, res.Body, 2000)
}

func TestFetch_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"object", `{"error":"nope"}`},
		{"header only", `[["GEN_VAL_MO","MONTH"]]`},
		{"not json", `<html>maintenance</html>`},
		{"ragged row", `[["GEN_VAL_MO","MONTH"],["1"]]`},
		{"scalar rows", `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			_, err := client.Fetch(context.Background(), Query{CommodityCode: "030617", From: "2024-01", To: "2024-01"})
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "err = %v", err)
			assert.LessOrEqual(t, len(fe.Excerpt), 200)
		})
	}
}

func TestFetch_MissingAPIKeyFailsBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "  ", time.Second)
	_, err := client.Fetch(context.Background(), Query{CommodityCode: "030617", From: "2024-01", To: "2024-01"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, called)
}

func TestFetch_InvalidRange(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.Fetch(context.Background(), Query{CommodityCode: "030617", From: "2024-05", To: "2024-01"})
	assert.Error(t, err)
}
