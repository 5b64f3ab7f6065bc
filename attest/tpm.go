package attest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"

	"github.com/moshih/nitro-oprf/protocol"
)

const (
	// tpmPCRCount is the register set quoted and verified: PCRs 0-7,
	// the firmware and boot measurement bank.
	tpmPCRCount = 8

	// defaultTPMDevice is the kernel resource-managed TPM device.
	defaultTPMDevice = "/dev/tpmrm0"

	// defaultAKHandle is the persistent handle of the attestation key.
	defaultAKHandle = tpmutil.Handle(0x81010001)

	// tpmGeneratedValue is the TPM_GENERATED magic that opens every
	// TPM-produced attestation structure.
	tpmGeneratedValue = 0xff544347
)

// TPMProvider quotes PCRs 0-7 through a virtual TPM and verifies the quote
// structure, register-set completeness and user-data binding. The quote
// signature is carried in the document for out-of-band validation against
// the attestation key certificate.
type TPMProvider struct {
	// Device is the TPM character device path. Defaults to /dev/tpmrm0.
	Device string

	// AKHandle is the persistent attestation key handle. Defaults to
	// 0x81010001.
	AKHandle tpmutil.Handle
}

func (p *TPMProvider) device() string {
	if p.Device != "" {
		return p.Device
	}
	return defaultTPMDevice
}

func (p *TPMProvider) akHandle() tpmutil.Handle {
	if p.AKHandle != 0 {
		return p.AKHandle
	}
	return defaultAKHandle
}

func (p *TPMProvider) Kind() protocol.AttestationKind {
	return protocol.KindVTPM
}

// Probe opens and closes the TPM device, surfacing a missing or
// inaccessible device at startup instead of on the first request.
func (p *TPMProvider) Probe() error {
	rw, err := tpm2.OpenTPM(p.device())
	if err != nil {
		return fmt.Errorf("opening TPM device %s: %w", p.device(), err)
	}
	return rw.Close()
}

// Attest reads PCRs 0-7 and produces a TPM quote with userData as the
// qualifying data.
func (p *TPMProvider) Attest(userData []byte) (*protocol.AttestationDocument, error) {
	rw, err := tpm2.OpenTPM(p.device())
	if err != nil {
		return nil, fmt.Errorf("opening TPM device %s: %w", p.device(), err)
	}
	defer rw.Close()

	sel := tpm2.PCRSelection{Hash: tpm2.AlgSHA256, PCRs: pcrIndices()}

	pcrs := make([][]byte, tpmPCRCount)
	for i := range pcrs {
		val, err := tpm2.ReadPCR(rw, i, tpm2.AlgSHA256)
		if err != nil {
			return nil, fmt.Errorf("reading PCR%d: %w", i, err)
		}
		pcrs[i] = val
	}

	attestation, sig, err := tpm2.Quote(rw, p.akHandle(), "", "", userData, sel, tpm2.AlgNull)
	if err != nil {
		return nil, fmt.Errorf("generating TPM quote: %w", err)
	}
	sigBlob, err := sig.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding quote signature: %w", err)
	}

	raw, err := encodeTPMDocument(&tpmDocument{Attestation: attestation, Signature: sigBlob, PCRs: pcrs})
	if err != nil {
		return nil, err
	}

	return &protocol.AttestationDocument{
		Kind:         protocol.KindVTPM,
		RawDocument:  raw,
		Measurements: tpmMeasurements(pcrs),
		UserData:     userData,
	}, nil
}

// Verify decodes the quote, checks structure and magic, the qualifying-data
// binding, and that the quoted PCR digest covers the carried register set.
func (p *TPMProvider) Verify(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error) {
	if err := checkBinding(doc, protocol.KindVTPM, expectedUserData); err != nil {
		return nil, err
	}

	body, err := parseTPMDocument(doc.RawDocument)
	if err != nil {
		return nil, err
	}
	if len(body.PCRs) != tpmPCRCount {
		return nil, fmt.Errorf("%w: document carries %d PCRs, want %d", ErrMalformedDocument, len(body.PCRs), tpmPCRCount)
	}
	for i, pcr := range body.PCRs {
		if len(pcr) != sha256.Size {
			return nil, fmt.Errorf("%w: PCR%d has %d bytes, want %d", ErrMalformedDocument, i, len(pcr), sha256.Size)
		}
	}

	ad, err := tpm2.DecodeAttestationData(body.Attestation)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding attestation data: %s", ErrMalformedDocument, err)
	}
	if ad.Magic != tpmGeneratedValue {
		return nil, fmt.Errorf("%w: attestation magic 0x%x", ErrMalformedDocument, ad.Magic)
	}
	if ad.Type != tpm2.TagAttestQuote {
		return nil, fmt.Errorf("%w: attestation type 0x%x is not a quote", ErrMalformedDocument, ad.Type)
	}
	if !bytes.Equal(ad.ExtraData, expectedUserData) {
		return nil, fmt.Errorf("%w: quote qualifying data differs from expected binding", ErrBindingMismatch)
	}
	if ad.AttestedQuoteInfo == nil {
		return nil, fmt.Errorf("%w: missing quote info", ErrMalformedDocument)
	}

	// The quoted digest covers the concatenated selected PCR values.
	digest := sha256.Sum256(bytes.Join(body.PCRs, nil))
	if !bytes.Equal(ad.AttestedQuoteInfo.PCRDigest, digest[:]) {
		return nil, fmt.Errorf("%w: PCR digest does not cover carried register set", ErrMalformedDocument)
	}

	return tpmMeasurements(body.PCRs), nil
}

// tpmDocument is the raw-document layout: the TPMS_ATTEST blob, the
// encoded TPMT_SIGNATURE, and the PCR values in index order.
type tpmDocument struct {
	Attestation []byte
	Signature   []byte
	PCRs        [][]byte
}

// encodeTPMDocument frames the quote components as
// [u32 len][attestation][u32 len][signature][pcr values].
func encodeTPMDocument(doc *tpmDocument) ([]byte, error) {
	var buf bytes.Buffer
	for _, blob := range [][]byte{doc.Attestation, doc.Signature} {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(blob)))
		buf.Write(lenBuf[:])
		buf.Write(blob)
	}
	for i, pcr := range doc.PCRs {
		if len(pcr) != sha256.Size {
			return nil, fmt.Errorf("PCR%d has %d bytes, want %d", i, len(pcr), sha256.Size)
		}
		buf.Write(pcr)
	}
	return buf.Bytes(), nil
}

func parseTPMDocument(raw []byte) (*tpmDocument, error) {
	doc := &tpmDocument{}
	rest := raw
	for _, target := range []*[]byte{&doc.Attestation, &doc.Signature} {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: truncated TPM document", ErrMalformedDocument)
		}
		blobLen := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < blobLen {
			return nil, fmt.Errorf("%w: truncated TPM document", ErrMalformedDocument)
		}
		*target = rest[:blobLen]
		rest = rest[blobLen:]
	}

	if len(rest)%sha256.Size != 0 {
		return nil, fmt.Errorf("%w: PCR data is not a whole number of registers", ErrMalformedDocument)
	}
	for len(rest) > 0 {
		doc.PCRs = append(doc.PCRs, rest[:sha256.Size])
		rest = rest[sha256.Size:]
	}
	return doc, nil
}

func pcrIndices() []int {
	indices := make([]int, tpmPCRCount)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func tpmMeasurements(pcrs [][]byte) Measurements {
	m := make(Measurements, len(pcrs))
	for i, pcr := range pcrs {
		m[registerName("pcr", i)] = pcr
	}
	return m
}
