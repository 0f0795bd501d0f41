package services

import (
	"bytes"
	"fmt"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

type ReceiptService struct {
	cfg *config.Config
}

func NewReceiptService(cfg *config.Config) *ReceiptService { return &ReceiptService{cfg: cfg} }

// GeneratePurchaseReceiptPDF generates an A4 PDF receipt for a purchase with
// the purchase key rendered as a QR code
func (s *ReceiptService) GeneratePurchaseReceiptPDF(purchase *models.PurchaseRecord, beat *models.Beat) ([]byte, error) {
	downloadURL := fmt.Sprintf("%s/beats/%s?key=%s", s.cfg.FrontendURL, beat.ID, purchase.PurchaseKey)

	// Create QR PNG in memory
	var qrBuf bytes.Buffer
	png, err := qrcode.Encode(downloadURL, qrcode.Medium, 512)
	if err != nil {
		return nil, err
	}
	qrBuf.Write(png)

	// Create PDF
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, "BeatVault Purchase Receipt")
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 6, fmt.Sprintf("Title: %s\nType: %s\nPrice: %.2f EUR\nPurchase key: %s\nPurchased: %s",
		beat.Title, beat.Type, purchase.Price, purchase.PurchaseKey,
		purchase.CreatedAt.Format("02.01.2006 15:04")), "", "L", false)

	// Register image from reader
	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("qr", opt, bytes.NewReader(qrBuf.Bytes()))

	// Center QR on the page
	x := (210.0 - 100.0) / 2.0 // A4 width 210mm, QR size 100mm
	y := pdf.GetY() + 10
	pdf.ImageOptions("qr", x, y, 100, 100, false, opt, 0, "")

	// Output to buffer
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
