package chatbot

import (
	"strings"
	"time"
)

const (
	kakaoSeeMorePadding = 500
	kakaoZeroWidthSpace = "\u200b"
)

var kst = time.FixedZone("KST", 9*60*60)

// 카카오톡 '전체보기'용 제로폭 문자를 채워 긴 본문을 접는다.
func withSeeMore(header, body string) string {
	if strings.TrimSpace(body) == "" {
		return header
	}
	body = stripLeadingHeader(body, header)

	var b strings.Builder
	b.Grow(len(header) + len(body) + kakaoSeeMorePadding*len(kakaoZeroWidthSpace) + 1)
	b.WriteString(strings.TrimSpace(header))
	b.WriteString(strings.Repeat(kakaoZeroWidthSpace, kakaoSeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// 첫 줄에 중복된 헤더가 있으면 제거한다.
func stripLeadingHeader(text, header string) string {
	if strings.TrimSpace(header) == "" {
		return text
	}
	for _, candidate := range []string{header + "\r\n", header + "\n", header} {
		if strings.HasPrefix(text, candidate) {
			return strings.TrimPrefix(text, candidate)
		}
	}
	return text
}

func formatKST(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(kst).Format("2006-01-02 15:04")
}
