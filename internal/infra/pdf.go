package infra

// pdf.go: weigh ticket generation using go-pdf/fpdf.
// Renders a thermal-receipt sized ticket with the business header, order id
// and timestamp, one row per weighed line (material, net kg, price, subtotal),
// the total and the payment method. Purchases read "Comprobante de Compra" and
// sales "Comprobante de Venta".
//
// The output file is saved to storagePath/ticket_{order_id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// ReceiptLine is one weighed line on the ticket.
type ReceiptLine struct {
	Material string          `json:"material"`
	NetKg    decimal.Decimal `json:"net_kg"`
	Tare     decimal.Decimal `json:"tare"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Receipt is everything the ticket shows. It is self-contained so a ticket can
// be printed before (or without) the order being persisted.
type Receipt struct {
	BusinessName  string          `json:"business_name"`
	OrderID       string          `json:"order_id"`
	OrderType     string          `json:"order_type"` // purchase | sale
	CustomerName  string          `json:"customer_name"`
	PaymentMethod string          `json:"payment_method"`
	Lines         []ReceiptLine   `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	IssuedAt      time.Time       `json:"issued_at"`
}

// GenerateReceiptPDF writes the ticket for r under storagePath (created if
// needed) and returns the path of the generated file.
func GenerateReceiptPDF(r Receipt, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	filePath := filepath.Join(storagePath, fmt.Sprintf("ticket_%s.pdf", r.OrderID))

	// 80mm roll; height grows with the number of lines
	height := 90 + 5*float64(len(r.Lines))
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: height},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, tr(r.BusinessName), "", 1, "C", false, 0, "")

	title := "Comprobante de Compra"
	if r.OrderType == "sale" {
		title = "Comprobante de Venta"
	}
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, title, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	// ── Order info ───────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(contentW, 4, "Orden "+r.OrderID, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	if r.CustomerName != "" {
		pdf.CellFormat(contentW, 4, tr("Cliente: "+r.CustomerName), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(contentW, 4, r.IssuedAt.Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	// ── Lines ────────────────────────────────────────────────────────────────
	col1 := contentW * 0.38 // material
	col2 := contentW * 0.18 // kg
	col3 := contentW * 0.18 // $/kg
	col4 := contentW * 0.26 // subtotal

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Material", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Kg", "B", 0, "R", false, 0, "")
	pdf.CellFormat(col3, 5, "$/Kg", "B", 0, "R", false, 0, "")
	pdf.CellFormat(col4, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, l := range r.Lines {
		pdf.CellFormat(col1, 5, tr(truncate(l.Material, 18)), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, l.NetKg.StringFixed(3), "", 0, "R", false, 0, "")
		pdf.CellFormat(col3, 5, l.Price.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(col4, 5, "$"+l.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	// ── Total ────────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2+col3, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col4, 6, "$"+r.Total.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	method := "Efectivo"
	if r.PaymentMethod == "external" {
		method = "Pago electrónico"
	}
	pdf.CellFormat(contentW, 4, tr("Pago: "+method), "", 1, "L", false, 0, "")

	// ── Footer ───────────────────────────────────────────────────────────────
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, tr("¡Gracias por reciclar!"), "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
