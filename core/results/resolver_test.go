package results

import "testing"

func TestExtractSignedReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"no url here", ""},
		{"Document signed. Signed URL: https://cdn.example.com/a/b.pdf", "https://cdn.example.com/a/b.pdf"},
		{"Signed URL: http://x.test/doc.pdf trailing text", "http://x.test/doc.pdf"},
		{"Signed URL: ftp://x.test/doc.pdf", ""},
		{"signed url: https://x.test/doc.pdf", ""},
	}
	for _, tt := range tests {
		if got := ExtractSignedReference(tt.in); got != tt.want {
			t.Errorf("ExtractSignedReference(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractStampedReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"...stamped_ARInvoices_20240101.pdf...", "stamped_ARInvoices_20240101.pdf"},
		{"saved stamped_ARInvoices_abc-123.pdf, ref 9", "stamped_ARInvoices_abc-123.pdf"},
		{"file stamped_Reimbursement_77.pdf done", "stamped_Reimbursement_77.pdf"},
		{"stamped_.pdf", ""},
		{"unstamped output.pdf", ""},
	}
	for _, tt := range tests {
		if got := ExtractStampedReference(tt.in); got != tt.want {
			t.Errorf("ExtractStampedReference(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStructuredReferenceWins(t *testing.T) {
	p := Payload{
		StructuredRef: "https://structured.test/doc.pdf",
		Result:        "Signed URL: https://text.test/doc.pdf",
	}
	if got := SignedReference(p); got != "https://structured.test/doc.pdf" {
		t.Errorf("SignedReference = %q", got)
	}

	p = Payload{Message: "Signed URL: https://msg.test/doc.pdf"}
	if got := SignedReference(p); got != "https://msg.test/doc.pdf" {
		t.Errorf("SignedReference from message = %q", got)
	}

	p = Payload{Result: "ok stamped_ARInvoices_1.pdf"}
	if got := StampedReference(p); got != "stamped_ARInvoices_1.pdf" {
		t.Errorf("StampedReference = %q", got)
	}
}
