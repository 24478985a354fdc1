package domain

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// EntryKind 条目分类
type EntryKind string

const (
	EntryKindEmail    EntryKind = "email"    // 完整邮箱地址
	EntryKindDomain   EntryKind = "domain"   // 域名（规范形式带 @ 前缀标记）
	EntryKindIP       EntryKind = "ip"       // IPv4 或 IPv6 地址
	EntryKindWildcard EntryKind = "wildcard" // 含单个 * 通配符的条目
)

// 条目长度限制
const (
	MaxEntryLength  = 255 // 规范化后最大码点数
	MaxDomainLength = 253 // 域名标签序列最大长度
)

// Entry 是一条已规范化、已分类的过滤列表条目。
// 条目是不可变值对象，除规范化文本外没有独立身份。
type Entry struct {
	Text string    // 规范化文本（小写、去首尾空白）
	Kind EntryKind // 分类结果
}

// ValidationError 收集条目校验失败的原因。
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// 校验错误消息
const (
	msgEntryRequired    = "entry is required"
	msgEntryEmpty       = "entry must not be empty"
	msgEntryTooLong     = "entry exceeds maximum length of 255 characters"
	msgDangerousContent = "entry contains potentially dangerous content"
	msgInvalidEmail     = "invalid email address format"
	msgInvalidDomain    = "invalid domain format"
	msgInvalidWildcard  = "invalid wildcard pattern"
	msgUnrecognized     = "unrecognized entry format"
)

// 危险内容模式，命中任意一条即拒绝（OR 语义，首个命中即止）
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)</?script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)onload\s*=`),
	regexp.MustCompile(`(?i)onerror\s*=`),
	regexp.MustCompile(`(?i)onclick\s*=`),
	regexp.MustCompile(`(?i)onmouseover\s*=`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)expression\s*\(`),
	regexp.MustCompile(`(?i)url\s*\(`),
	regexp.MustCompile(`(?i)@import`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed)`),
}

// 语法正则（作用于已小写化文本）
var (
	// DNS 标签：1-63 字符，不以连字符开头或结尾
	labelPattern = `[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?`

	domainLabelsRegex = regexp.MustCompile(`^` + labelPattern + `(?:\.` + labelPattern + `)*$`)

	// 邮箱本地部分字符集
	localPartRegex = regexp.MustCompile(`^[a-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+$`)

	ipv4Regex = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

	// 完整展开的 8 组 IPv6；压缩形式仅接受字面量 :: 与 ::1
	ipv6FullRegex = regexp.MustCompile(`^[0-9a-f]{1,4}(?::[0-9a-f]{1,4}){7}$`)

	// 通配形式：*.label(.label)* 或 local-part@*.label(.label)*
	wildcardBareRegex  = regexp.MustCompile(`^\*(?:\.` + labelPattern + `)+$`)
	wildcardEmailRegex = regexp.MustCompile(`^[a-z0-9.!#$%&'+/=?^_` + "`" + `{|}~-]+@\*(?:\.` + labelPattern + `)+$`)
)

// ParseEntry 校验并规范化一条候选条目。
//
// 流程：非空与长度检查、危险内容拒绝、trim+小写规范化、
// 按通配符/邮箱/IP/域名的顺序分类；域名规范形式统一带 @ 前缀标记。
// 失败时返回 *ValidationError，其中包含可读的原因列表。
func ParseEntry(raw string) (Entry, error) {
	if raw == "" {
		return Entry{}, &ValidationError{Messages: []string{msgEntryRequired}}
	}

	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Entry{}, &ValidationError{Messages: []string{msgEntryEmpty}}
	}
	if utf8.RuneCountInString(normalized) > MaxEntryLength {
		return Entry{}, &ValidationError{Messages: []string{msgEntryTooLong}}
	}

	// 危险内容检查：命中首个模式即拒绝
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(normalized) {
			return Entry{}, &ValidationError{Messages: []string{msgDangerousContent}}
		}
	}

	return classify(normalized)
}

// classify 按固定顺序尝试各个类别。
//
// 通配符必须先于邮箱与域名判断：含 * 的条目会被后两者的语法拒绝；
// IP 必须先于域名判断：点分十进制同样满足域名标签语法。
func classify(text string) (Entry, error) {
	if strings.Contains(text, "*") {
		if isValidWildcard(text) {
			return Entry{Text: text, Kind: EntryKindWildcard}, nil
		}
		return Entry{}, &ValidationError{Messages: []string{msgInvalidWildcard}}
	}

	if strings.Contains(text, "@") && !strings.HasPrefix(text, "@") {
		if isValidEmail(text) {
			return Entry{Text: text, Kind: EntryKindEmail}, nil
		}
		return Entry{}, &ValidationError{Messages: []string{msgInvalidEmail}}
	}

	if isValidIPv4(text) || isValidIPv6(text) {
		return Entry{Text: text, Kind: EntryKindIP}, nil
	}

	if strings.HasPrefix(text, "@") || strings.Contains(text, ".") {
		candidate := strings.TrimPrefix(text, "@")
		if isValidDomain(candidate) {
			return Entry{Text: "@" + candidate, Kind: EntryKindDomain}, nil
		}
		return Entry{}, &ValidationError{Messages: []string{msgInvalidDomain}}
	}

	// 最后尝试：推测性地按域名解释（如不带点的主机名）
	if isValidDomain(text) {
		return Entry{Text: "@" + text, Kind: EntryKindDomain}, nil
	}

	return Entry{}, &ValidationError{Messages: []string{msgUnrecognized}}
}

func isValidEmail(text string) bool {
	at := strings.LastIndex(text, "@")
	if at <= 0 || at == len(text)-1 {
		return false
	}
	local := text[:at]
	domain := text[at+1:]
	return localPartRegex.MatchString(local) && isValidDomain(domain)
}

func isValidDomain(domain string) bool {
	if domain == "" || len(domain) > MaxDomainLength {
		return false
	}
	return domainLabelsRegex.MatchString(domain)
}

func isValidIPv4(text string) bool {
	m := ipv4Regex.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	for _, octet := range m[1:] {
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// isValidIPv6 仅接受完整展开的 8 组形式与字面量 ::、::1。
// 完整的 RFC 5952 零压缩语法暂不支持。
func isValidIPv6(text string) bool {
	if text == "::" || text == "::1" {
		return true
	}
	return ipv6FullRegex.MatchString(text)
}

// isValidWildcard 要求恰好一个 *，且满足裸域名或邮箱两种形态之一。
func isValidWildcard(text string) bool {
	if strings.Count(text, "*") != 1 {
		return false
	}
	return wildcardBareRegex.MatchString(text) || wildcardEmailRegex.MatchString(text)
}
