package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordTokenIssued_IncrementsCounter はトークン発行カウンタが増加することを検証する。
func TestRecordTokenIssued_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenIssued()
	c.RecordTokenIssued()

	if got := testutil.ToFloat64(c.tokensIssued); got != 2 {
		t.Errorf("tokens_issued_total = %v, want 2", got)
	}
}

// TestRecordTokenVerification_LabelsByResult は検証結果ごとに別系列で記録されることを検証する。
func TestRecordTokenVerification_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenVerification(VerifyResultValid)
	c.RecordTokenVerification(VerifyResultExpired)
	c.RecordTokenVerification(VerifyResultExpired)
	c.RecordTokenVerification(VerifyResultInvalid)

	tests := map[string]float64{
		VerifyResultValid:   1,
		VerifyResultExpired: 2,
		VerifyResultInvalid: 1,
	}
	for result, want := range tests {
		if got := testutil.ToFloat64(c.tokenVerify.WithLabelValues(result)); got != want {
			t.Errorf("token_verifications_total{result=%q} = %v, want %v", result, got, want)
		}
	}
}

// TestRecordLogin_And_EventLogFailure はログインと書き込み失敗のカウンタを検証する。
func TestRecordLogin_And_EventLogFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin("success")
	c.RecordEventLogFailure("auth")

	if got := testutil.ToFloat64(c.logins.WithLabelValues("success")); got != 1 {
		t.Errorf("logins_total{outcome=success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.eventLogFailures.WithLabelValues("auth")); got != 1 {
		t.Errorf("event_log_write_failures_total{stream=auth} = %v, want 1", got)
	}
}

// TestRecordHTTPRequest_RecordsStatusAndLatency はステータス別カウンタとヒストグラムを検証する。
func TestRecordHTTPRequest_RecordsStatusAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(200, 10*time.Millisecond)
	c.RecordHTTPRequest(401, 5*time.Millisecond)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 1 {
		t.Errorf("http_status_total{200} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("401")); got != 1 {
		t.Errorf("http_status_total{401} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.httpLatency); n != 1 {
		t.Errorf("latency histogram series = %d, want 1", n)
	}
}

// TestNewCollector_DuplicateRegistration_Panics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistration_Panics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
