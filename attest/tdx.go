package attest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-tdx-guest/abi"
	"github.com/google/go-tdx-guest/client"
	proto "github.com/google/go-tdx-guest/proto/tdx"

	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
)

// tdxRTMRCount is the number of runtime measurement registers in a TD
// quote body.
const tdxRTMRCount = 4

// mrtdName is the measurements key for the TD module measurement.
const mrtdName = "mrtd"

// TDXProvider generates quotes through the local configfs-tsm interface
// and verifies TDX quote structure, report-data binding and measurement
// presence. Collateral-backed certificate chain validation is left to an
// out-of-band DCAP verifier.
type TDXProvider struct{}

func (p *TDXProvider) Kind() protocol.AttestationKind {
	return protocol.KindTDX
}

// RawQuote obtains a raw quote blob for reportData from the local quoting
// device.
func (p *TDXProvider) RawQuote(reportData [crypto.ReportDataSize]byte) ([]byte, error) {
	qp := &client.LinuxConfigFsQuoteProvider{}
	raw, err := qp.GetRawQuote(reportData)
	if err != nil {
		return nil, fmt.Errorf("reading quote from configfs-tsm: %w", err)
	}
	return raw, nil
}

// Attest generates a TDX quote binding userData into the report data.
func (p *TDXProvider) Attest(userData []byte) (*protocol.AttestationDocument, error) {
	raw, err := p.RawQuote(paddedReportData(userData))
	if err != nil {
		return nil, err
	}
	return tdxDocument(raw, userData)
}

// Verify validates quote structure, report-data binding and measurement
// presence.
func (p *TDXProvider) Verify(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error) {
	return verifyTDX(doc, expectedUserData)
}

// RemoteTDXProvider obtains quotes from an HTTP quote sidecar (the
// quote-server command) and verifies them locally exactly like TDXProvider.
// Used on hosts where only a sidecar process holds the quoting device.
type RemoteTDXProvider struct {
	URL     string
	Timeout time.Duration
}

func (p *RemoteTDXProvider) Kind() protocol.AttestationKind {
	return protocol.KindTDX
}

// Attest requests a quote for userData from the remote sidecar.
func (p *RemoteTDXProvider) Attest(userData []byte) (*protocol.AttestationDocument, error) {
	reportData := paddedReportData(userData)
	url := fmt.Sprintf("%s/attest/%x", p.URL, reportData[:])

	timeout := p.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating quote request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return tdxDocument(raw, userData)
}

// Verify validates quote structure, report-data binding and measurement
// presence.
func (p *RemoteTDXProvider) Verify(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error) {
	return verifyTDX(doc, expectedUserData)
}

func paddedReportData(userData []byte) [crypto.ReportDataSize]byte {
	var rd [crypto.ReportDataSize]byte
	copy(rd[:], userData)
	return rd
}

// parseQuote converts a raw quote blob into a QuoteV4.
func parseQuote(raw []byte) (*proto.QuoteV4, error) {
	anyQuote, err := abi.QuoteToProto(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing quote: %s", ErrMalformedDocument, err)
	}
	quote, ok := anyQuote.(*proto.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("%w: quote is not a QuoteV4", ErrMalformedDocument)
	}
	return quote, nil
}

// tdxDocument extracts measurements from a raw quote and assembles the
// attestation document.
func tdxDocument(raw, userData []byte) (*protocol.AttestationDocument, error) {
	quote, err := parseQuote(raw)
	if err != nil {
		return nil, err
	}
	return &protocol.AttestationDocument{
		Kind:         protocol.KindTDX,
		RawDocument:  raw,
		Measurements: tdxMeasurements(quote),
		UserData:     userData,
	}, nil
}

func verifyTDX(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error) {
	if err := checkBinding(doc, protocol.KindTDX, expectedUserData); err != nil {
		return nil, err
	}

	quote, err := parseQuote(doc.RawDocument)
	if err != nil {
		return nil, err
	}

	body := quote.GetTdQuoteBody()
	reportData := paddedReportData(expectedUserData)
	if !bytes.Equal(body.GetReportData(), reportData[:]) {
		return nil, fmt.Errorf("%w: quote report data differs from expected binding", ErrBindingMismatch)
	}
	if len(body.GetMrTd()) == 0 {
		return nil, fmt.Errorf("%w: missing MRTD", ErrMalformedDocument)
	}
	if len(body.GetRtmrs()) < tdxRTMRCount {
		return nil, fmt.Errorf("%w: quote carries %d RTMRs, want %d", ErrMalformedDocument, len(body.GetRtmrs()), tdxRTMRCount)
	}

	return tdxMeasurements(quote), nil
}

func tdxMeasurements(quote *proto.QuoteV4) Measurements {
	body := quote.GetTdQuoteBody()
	m := make(Measurements, tdxRTMRCount+1)
	m[mrtdName] = body.GetMrTd()
	for i, rtmr := range body.GetRtmrs() {
		if i >= tdxRTMRCount {
			break
		}
		m[registerName("rtmr", i)] = rtmr
	}
	return m
}
