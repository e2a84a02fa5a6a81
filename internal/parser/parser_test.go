package parser

import (
	"bytes"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		input        string
		expectedRows int
		expectedQ    string
		expectedA    string
		expectedQImg string
		expectedAImg string
	}{
		{
			name:         "Semicolon deck",
			input:        "Question;Answer\nWhat is 1+1?;2\n",
			expectedRows: 1,
			expectedQ:    "What is 1+1?",
			expectedA:    "2",
		},
		{
			name:         "Comma deck",
			input:        "Question,Answer\nCapital of France?,Paris\n",
			expectedRows: 1,
			expectedQ:    "Capital of France?",
			expectedA:    "Paris",
		},
		{
			name:         "Semicolon preferred over comma",
			input:        "Question;Answer, with comma\nA, B;C\n",
			expectedRows: 1,
			expectedQ:    "A, B",
			expectedA:    "C",
		},
		{
			name:         "Quoted delimiter and doubled quotes",
			input:        "Q;A\n\"a;b\";\"say \"\"hi\"\"\"\n",
			expectedRows: 1,
			expectedQ:    "a;b",
			expectedA:    `say "hi"`,
		},
		{
			name:         "Embedded newline",
			input:        "Q;A\n\"line one\nline two\";answer\n",
			expectedRows: 1,
			expectedQ:    "line one\nline two",
			expectedA:    "answer",
		},
		{
			name:         "Image columns",
			input:        "Q;A;QI;AI\nq;a;https://example.com/x.png;/media/y.jpg\n",
			expectedRows: 1,
			expectedQ:    "q",
			expectedA:    "a",
			expectedQImg: "https://example.com/x.png",
			expectedAImg: "/media/y.jpg",
		},
		{
			name:         "BOM and CRLF",
			input:        "\xEF\xBB\xBFQ;A\r\nq;a\r\n",
			expectedRows: 1,
			expectedQ:    "q",
			expectedA:    "a",
		},
		{
			name:         "Short and blank rows skipped",
			input:        "Q;A\nonly one field\n;answer\n\nq;a\n",
			expectedRows: 1,
			expectedQ:    "q",
			expectedA:    "a",
		},
		{
			name:         "Header only",
			input:        "Question;Answer\n",
			expectedRows: 0,
		},
		{
			name:         "Empty input",
			input:        "",
			expectedRows: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(rows) != tc.expectedRows {
				t.Fatalf("Expected %d rows, but got %d", tc.expectedRows, len(rows))
			}

			if tc.expectedRows > 0 {
				row := rows[0]
				if row.Question != tc.expectedQ {
					t.Errorf("Expected question '%s', but got '%s'", tc.expectedQ, row.Question)
				}
				if row.Answer != tc.expectedA {
					t.Errorf("Expected answer '%s', but got '%s'", tc.expectedA, row.Answer)
				}
				if row.QuestionImage != tc.expectedQImg {
					t.Errorf("Expected question image '%s', but got '%s'", tc.expectedQImg, row.QuestionImage)
				}
				if row.AnswerImage != tc.expectedAImg {
					t.Errorf("Expected answer image '%s', but got '%s'", tc.expectedAImg, row.AnswerImage)
				}
			}
		})
	}
}

func TestDetectDelimiter(t *testing.T) {
	testCases := map[string]rune{
		"Question;Answer":  ';',
		"Question,Answer":  ',',
		"Q,A;B":            ';',
		"Question\tAnswer": '\t',
		"Question":         ';',
	}
	for header, expected := range testCases {
		if got := DetectDelimiter(header); got != expected {
			t.Errorf("Expected delimiter %q for %q, but got %q", expected, header, got)
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	rows := []Row{
		{Question: "plain", Answer: "text"},
		{Question: "has;semicolon", Answer: `has "quotes"`},
		{Question: "multi\nline", Answer: "a", QuestionImage: "/media/q.png", AnswerImage: "/media/a.png"},
	}

	var buf bytes.Buffer
	if err := Write(&buf, rows); err != nil {
		t.Fatalf("Write() returned an unexpected error: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "Question;Answer;QuestionImage;AnswerImage\n") {
		t.Errorf("Expected header line, but got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"has;semicolon";"has ""quotes"""`) {
		t.Errorf("Expected quoted fields, but got %q", buf.String())
	}

	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(parsed) != len(rows) {
		t.Fatalf("Expected %d rows, but got %d", len(rows), len(parsed))
	}
	for i := range rows {
		if parsed[i] != rows[i] {
			t.Errorf("Expected row %d to be %+v, but got %+v", i, rows[i], parsed[i])
		}
	}
}
