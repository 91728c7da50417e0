package price

import (
	"testing"
	"time"

	"cryptojackal/internal/executor/model"

	"github.com/bytedance/sonic"
)

func TestLatestByToken(t *testing.T) {
	base := time.Now()
	got := latestByToken([]model.AggregatedPrice{
		{TokenAddress: "0xa", PriceUSD: 1, Timestamp: base},
		{TokenAddress: "0xa", PriceUSD: 3, Timestamp: base.Add(2 * time.Second)},
		{TokenAddress: "0xa", PriceUSD: 2, Timestamp: base.Add(time.Second)},
		{TokenAddress: "0xb", PriceUSD: 9, Timestamp: base},
	})
	if len(got) != 2 {
		t.Fatalf("tokens = %d, want 2", len(got))
	}
	if got["0xa"].PriceUSD != 3 {
		t.Errorf("0xa price = %v, want newest 3", got["0xa"].PriceUSD)
	}
	if got["0xb"].PriceUSD != 9 {
		t.Errorf("0xb price = %v, want 9", got["0xb"].PriceUSD)
	}
}

func TestToSelectDBRows(t *testing.T) {
	ts := time.Date(2025, 10, 1, 8, 30, 0, 250*int(time.Millisecond), time.UTC)
	rows := toSelectDBRows(1, []model.AggregatedPrice{{
		TokenAddress:    "0x1F9840a85d5aF5bf1D1762F925BDADdC4201F984",
		Symbol:          "UNI",
		PriceUSD:        7.5,
		SourceCount:     2,
		Sources:         []model.PriceSource{model.SOURCE_COINGECKO, model.SOURCE_UNISWAP_V2},
		OutlierDetected: true,
		Timestamp:       ts,
	}})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.TokenAddress != "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984" {
		t.Errorf("token = %s, want lowercase", r.TokenAddress)
	}
	if r.Sources != "coingecko,uniswap_v2" {
		t.Errorf("sources = %q", r.Sources)
	}
	if r.Ts != "2025-10-01 08:30:00.250" {
		t.Errorf("ts = %q", r.Ts)
	}
	if r.ChainID != 1 || !r.OutlierDetected || r.PriceUSD != 7.5 {
		t.Errorf("unexpected row %+v", r)
	}
}

func TestSelectDBColumnsMatchRow(t *testing.T) {
	data, err := sonic.Marshal(selectDBPriceRow{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]interface{}
	if err := sonic.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fields) != len(selectDBPriceColumns) {
		t.Fatalf("row has %d fields, columns list has %d", len(fields), len(selectDBPriceColumns))
	}
	for _, col := range selectDBPriceColumns {
		if _, ok := fields[col]; !ok {
			t.Errorf("column %s missing from row json", col)
		}
	}
}
