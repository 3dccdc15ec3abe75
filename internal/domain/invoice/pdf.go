package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

var (
	colorHeader = [3]int{30, 58, 95}
	colorMuted  = [3]int{127, 140, 141}
	colorText   = [3]int{44, 62, 80}
)

// renderPDF produces a one-page invoice document.
func renderPDF(inv *Invoice) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	// Header band
	pdf.SetFillColor(colorHeader[0], colorHeader[1], colorHeader[2])
	pdf.Rect(0, 0, 210, 30, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(20, 10)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "L", false, 0, "")

	pdf.SetTextColor(colorText[0], colorText[1], colorText[2])
	pdf.SetXY(20, 40)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, inv.InvoiceNumber, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
	pdf.CellFormat(0, 6, "Billing date: "+inv.BillingDate.Format("January 2, 2006"), "", 1, "L", false, 0, "")
	if inv.DueDate != nil {
		pdf.CellFormat(0, 6, "Due date: "+inv.DueDate.Format("January 2, 2006"), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Status: "+strings.ToUpper(string(inv.Status)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Customer: "+inv.UserID.String(), "", 1, "L", false, 0, "")

	// Line items table
	pdf.Ln(8)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFillColor(colorHeader[0], colorHeader[1], colorHeader[2])
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(130, 8, "Description", "", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "Amount", "", 1, "R", true, 0, "")

	pdf.SetTextColor(colorText[0], colorText[1], colorText[2])
	pdf.SetFont("Helvetica", "", 10)
	desc := inv.Description
	if desc == "" {
		desc = "Telehealth services"
	}
	pdf.CellFormat(130, 8, desc, "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, formatAmount(inv.AmountCents, inv.Currency), "B", 1, "R", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(130, 10, "Total", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 10, formatAmount(inv.AmountCents, inv.Currency), "", 1, "R", false, 0, "")

	pdf.SetY(-30)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC1123)), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}
