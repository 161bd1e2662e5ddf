// Package sheet 负责订货表的读写（CSV）。
//
// 输入只关心两列：数量（Cantidad）与商品名（Nombre）。表头缺失或命名不同时，
// 退化为按位置取前两列。
package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

const (
	ColQuantity = "Cantidad"
	ColName     = "Nombre"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RowIssue 描述一条被跳过的输入行（数量无效、商品名为空）。
// 按约定：跳过并告警，绝不静默改成默认值。
type RowIssue struct {
	Row       int
	Term      string
	Raw       string
	ErrorCode string
	Err       error
}

// Input 是解析后的输入表。
type Input struct {
	Requests []domain.SearchRequest
	Issues   []RowIssue
	// Positional 为 true 表示表头不含 Cantidad/Nombre，按前两列解析。
	Positional bool
}

// Rows 返回有效请求与跳过行的总数。
func (in Input) Rows() int { return len(in.Requests) + len(in.Issues) }

// Read 解析 CSV 输入。分隔符在 ',' 与 ';' 之间按表头行自动判定。
func Read(r io.Reader) (Input, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Input{}, err
	}

	cr := csv.NewReader(br)
	cr.Comma = detectComma(head)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Input{}, errors.New("输入表为空")
		}
		return Input{}, fmt.Errorf("读取表头失败：%w", err)
	}

	qi, ni, positional, err := locateColumns(header)
	if err != nil {
		return Input{}, err
	}

	in := Input{Positional: positional}
	row := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Input{}, fmt.Errorf("读取第 %d 行失败：%w", row+1, err)
		}

		rawQty := strings.TrimSpace(field(rec, qi))
		term := strings.TrimSpace(field(rec, ni))
		if rawQty == "" && term == "" {
			// 空行：直接丢弃，不计入行号。
			continue
		}
		row++

		if term == "" {
			in.Issues = append(in.Issues, RowIssue{
				Row: row, Raw: rawQty, ErrorCode: domain.ErrCodeEmptyName,
				Err: errors.New("商品名为空"),
			})
			continue
		}

		qty, err := ParseQuantity(rawQty)
		if err != nil {
			in.Issues = append(in.Issues, RowIssue{
				Row: row, Term: term, Raw: rawQty, ErrorCode: domain.ErrCodeInvalidQuantity, Err: err,
			})
			continue
		}

		in.Requests = append(in.Requests, domain.SearchRequest{
			Row:               row,
			RequestedQuantity: qty,
			SearchTerm:        term,
		})
	}
	return in, nil
}

// ParseQuantity 解析数量：接受 "12"、"2.5"、"2,5"；拒绝空值与负数。
func ParseQuantity(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, &domain.InvalidInputError{Field: "requested_quantity", Reason: "数量为空"}
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &domain.InvalidInputError{Field: "requested_quantity", Value: raw, Reason: "不是数字"}
	}
	if d.IsNegative() {
		return decimal.Zero, &domain.InvalidInputError{Field: "requested_quantity", Value: raw, Reason: "不能为负数"}
	}
	return d, nil
}

func locateColumns(header []string) (qi, ni int, positional bool, err error) {
	qi, ni = -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case ColQuantity:
			if qi < 0 {
				qi = i
			}
		case ColName:
			if ni < 0 {
				ni = i
			}
		}
	}
	if qi >= 0 && ni >= 0 {
		return qi, ni, false, nil
	}
	if len(header) < 2 {
		return 0, 0, false, fmt.Errorf("输入表至少需要两列：%q 与 %q", ColQuantity, ColName)
	}
	return 0, 1, true, nil
}

func detectComma(head []byte) rune {
	line, _, _ := bytes.Cut(head, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
