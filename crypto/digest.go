package crypto

import "crypto/sha256"

// DigestSize is the byte length of digests produced by Digest.
const DigestSize = sha256.Size

// ReportDataSize is the byte length of the report-data field shared by the
// TDX and NSM quoting interfaces.
const ReportDataSize = 64

// Digest computes the SHA-256 digest used for request integrity hashes and
// attestation user-data binding.
func Digest(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// ReportData zero-pads a digest of data into the fixed-width report-data
// field expected by hardware quoting interfaces.
func ReportData(data []byte) [ReportDataSize]byte {
	var rd [ReportDataSize]byte
	copy(rd[:], Digest(data))
	return rd
}
