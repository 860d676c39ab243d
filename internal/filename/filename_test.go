package filename

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Parsed
	}{
		{
			name: "structured with version suffix",
			in:   "Design Spec (01-TEST - 1028340 - 1 - A1) - 1.docx",
			want: Parsed{
				Title: "Design Spec", DocClass: "01-TEST", DocNumber: "1028340",
				DocSheet: "1", DocRevision: "A1", FileExtension: ".DOCX",
				IsStructuredFormat: true,
			},
		},
		{
			name: "copy marker and lower-case revision",
			in:   "Copy of Design Spec (01-TEST - 1028340 - 1 - a1).pdf",
			want: Parsed{
				Title: "Design Spec", DocClass: "01-TEST", DocNumber: "1028340",
				DocSheet: "1", DocRevision: "A1", FileExtension: ".PDF",
				IsStructuredFormat: true, IsCopyMarker: true,
			},
		},
		{
			name: "bracket group with earlier aside",
			in:   "Pump (draft) Layout [ABC - 12 - 3 - B] - 4.xlsx",
			want: Parsed{
				Title: "Pump Layout", DocClass: "ABC", DocNumber: "12",
				DocSheet: "3", DocRevision: "B", FileExtension: ".XLSX",
				IsStructuredFormat: true,
			},
		},
		{
			name: "rightmost qualifying group wins",
			in:   "Spec (A - 1 - 2 - X) notes (B - 3 - 4 - Y).pdf",
			want: Parsed{
				Title: "Spec notes", DocClass: "B", DocNumber: "3",
				DocSheet: "4", DocRevision: "Y", FileExtension: ".PDF",
				IsStructuredFormat: true,
			},
		},
		{
			name: "multi-part class",
			in:   "Layout (PLANT - 02 - MECH - 5550 - 2 - c).dwg",
			want: Parsed{
				Title: "Layout", DocClass: "PLANT - 02 - MECH", DocNumber: "5550",
				DocSheet: "2", DocRevision: "C", FileExtension: ".DWG",
				IsStructuredFormat: true,
			},
		},
		{
			name: "inline fallback",
			in:   "Valve Datasheet 02-MECH - 5550 - 2 - c.pdf",
			want: Parsed{
				Title: "Valve Datasheet", DocClass: "02-MECH", DocNumber: "5550",
				DocSheet: "2", DocRevision: "C", FileExtension: ".PDF",
				IsStructuredFormat: true,
			},
		},
		{
			name: "inline fallback after separator",
			in:   "Title - 01-TEST - 12 - 1 - A - 7.txt",
			want: Parsed{
				Title: "Title", DocClass: "01-TEST", DocNumber: "12",
				DocSheet: "1", DocRevision: "A", FileExtension: ".TXT",
				IsStructuredFormat: true,
			},
		},
		{
			name: "unstructured",
			in:   "meeting notes.txt",
			want: Parsed{Title: "meeting notes", FileExtension: ".TXT"},
		},
		{
			name: "group tokens qualify but not hyphen separated",
			in:   "Report (AB_12_3_C).pdf",
			want: Parsed{Title: "Report (AB_12_3_C)", FileExtension: ".PDF"},
		},
		{
			name: "no extension",
			in:   "README",
			want: Parsed{Title: "README"},
		},
		{
			name: "dot that is not an extension",
			in:   "Spec Rev. final draft",
			want: Parsed{Title: "Spec Rev. final draft"},
		},
		{
			name: "unstructured keeps version text",
			in:   "Plan - 3.pdf",
			want: Parsed{Title: "Plan - 3", FileExtension: ".PDF"},
		},
		{
			name: "copy marker on unstructured name",
			in:   "copy of budget.xlsx",
			want: Parsed{Title: "budget", FileExtension: ".XLSX", IsCopyMarker: true},
		},
		{
			name: "empty",
			in:   "",
			want: Parsed{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			if got != tt.want {
				t.Errorf("Parse(%q)\n got  %+v\n want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_StructuredInvariant(t *testing.T) {
	names := []string{
		"Design Spec (01-TEST - 1028340 - 1 - A1) - 1.docx",
		"A (B 1 - 2 - 3) x.pdf",
		"A (X - B 1 - 2 - 3).pdf",
		"Spec (A - 1 - 2 - X) notes (B - 3 - 4 - Y).pdf",
		"Valve 02-MECH - 5550 - 2 - c.pdf",
	}
	for _, n := range names {
		p := Parse(n)
		if !p.IsStructuredFormat {
			continue
		}
		if !digitsRe.MatchString(p.DocNumber) || !digitsRe.MatchString(p.DocSheet) || !alnumRe.MatchString(p.DocRevision) {
			t.Errorf("Parse(%q) structured with invalid fields: %+v", n, p)
		}
	}
}

func TestParse_UnstructuredHasEmptyMetadata(t *testing.T) {
	for _, n := range []string{"notes.txt", "Plan (v2).pdf", "a (1 - 2 - 3).pdf", "Report [x - y - z - w].doc"} {
		p := Parse(n)
		if p.IsStructuredFormat {
			t.Errorf("Parse(%q) unexpectedly structured: %+v", n, p)
			continue
		}
		if p.DocClass != "" || p.DocNumber != "" || p.DocSheet != "" || p.DocRevision != "" {
			t.Errorf("Parse(%q) has metadata without structure: %+v", n, p)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	in := "Pump (draft) Layout [ABC - 12 - 3 - B] - 4.xlsx"
	if Parse(in) != Parse(in) {
		t.Error("Parse is not deterministic")
	}
}

func TestParseAny(t *testing.T) {
	if _, ok := ParseAny(nil); ok {
		t.Error("ParseAny(nil) should report false")
	}
	if _, ok := ParseAny(42); ok {
		t.Error("ParseAny(42) should report false")
	}
	p, ok := ParseAny("notes.txt")
	if !ok || p.Title != "notes" {
		t.Errorf("ParseAny(string) = %+v, %v", p, ok)
	}
}

func TestDocTypeFor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{".docx", DocTypeWord},
		{"DOCX", DocTypeWord},
		{".pdf", DocTypePDF},
		{".PPTX", DocTypePowerPoint},
		{".xlsx", DocTypeExcel},
		{".txt", DocTypeText},
		{".jpeg", DocTypeImage},
		{".dwg", "DWG"},
		{"", DocTypeUnknown},
	}
	for _, tt := range tests {
		if got := DocTypeFor(tt.in); got != tt.want {
			t.Errorf("DocTypeFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocTypeForPath(t *testing.T) {
	if got := DocTypeForPath("docs/spec.txt"); got != DocTypeText {
		t.Errorf("DocTypeForPath = %q", got)
	}
}
