package port

import "context"

// ReceiptImage is a receipt ready to hand to a DocumentAnalyzer. Either URL is set
// (remote image the capability fetches itself) or Data and MimeType are.
type ReceiptImage struct {
	URL      string
	Data     []byte
	MimeType string
}

// ReceiptStore resolves a claim's receipt image reference
type ReceiptStore interface {
	Load(ctx context.Context, ref string) (*ReceiptImage, error)
}
