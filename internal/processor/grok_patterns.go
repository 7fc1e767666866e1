package processor

// defaultGrokPatterns is the bundled pattern catalogue. The definitions are
// RE2-compatible renderings of the classic grok library: no lookarounds, no
// atomic groups.
var defaultGrokPatterns = map[string]string{
	// Base
	"WORD":         `\b\w+\b`,
	"NOTSPACE":     `\S+`,
	"SPACE":        `\s+`,
	"DATA":         `.*?`,
	"GREEDYDATA":   `.*`,
	"QUOTEDSTRING": `"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`,
	"QS":           `%{QUOTEDSTRING}`,

	// Numbers
	"INT":       `[+-]?[0-9]+`,
	"BASE10NUM": `[+-]?(?:[0-9]+(?:\.[0-9]+)?|\.[0-9]+)`,
	"NUMBER":    `%{BASE10NUM}`,
	"BASE16NUM": `[+-]?(?:0x)?[0-9A-Fa-f]+`,
	"POSINT":    `\b[1-9][0-9]*\b`,
	"NONNEGINT": `\b[0-9]+\b`,

	// Levels
	"LOGLEVEL": `(?:[Tt]race|TRACE|[Dd]ebug|DEBUG|[Ii]nfo(?:rmation)?|INFO|[Nn]otice|NOTICE|[Ww]arn(?:ing)?|WARN(?:ING)?|[Ee]rr(?:or)?|ERR(?:OR)?|[Cc]rit(?:ical)?|CRIT(?:ICAL)?|[Ff]atal|FATAL|[Ss]evere|SEVERE|[Ee]merg(?:ency)?|EMERG(?:ENCY)?|[Aa]lert|ALERT)`,

	// Networking
	"IPV4":     `(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`,
	"IPV6":     `(?:[0-9A-Fa-f]{0,4}:){2,7}(?:[0-9A-Fa-f]{0,4}|%{IPV4})`,
	"IP":       `(?:%{IPV6}|%{IPV4})`,
	"HOSTNAME": `\b[0-9A-Za-z][0-9A-Za-z-]{0,62}(?:\.[0-9A-Za-z][0-9A-Za-z-]{0,62})*\.?\b`,
	"HOST":     `%{HOSTNAME}`,
	"IPORHOST": `(?:%{IP}|%{HOSTNAME})`,
	"HOSTPORT": `%{IPORHOST}:%{POSINT}`,

	// Paths and URIs
	"UNIXPATH":     `(?:/[\w.+=:,!@#$%&~-]*)+`,
	"WINPATH":      `(?:[A-Za-z]:|\\)(?:\\[^\\?*]*)+`,
	"PATH":         `(?:%{UNIXPATH}|%{WINPATH})`,
	"URIPROTO":     `[A-Za-z][A-Za-z0-9+.-]+`,
	"URIHOST":      `%{IPORHOST}(?::%{POSINT})?`,
	"URIPATH":      `(?:/[A-Za-z0-9$.+!*'(){},~:;=@#%_-]*)+`,
	"URIPARAM":     `\?[A-Za-z0-9$.+!*'|(){},~@#%&/=:;_?\[\]<>-]*`,
	"URIPATHPARAM": `%{URIPATH}(?:%{URIPARAM})?`,

	// Date and time
	"MONTH":            `\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\b`,
	"MONTHNUM":         `(?:0?[1-9]|1[0-2])`,
	"MONTHDAY":         `(?:0[1-9]|[12][0-9]|3[01]|[1-9])`,
	"DAY":              `(?:Mon(?:day)?|Tue(?:sday)?|Wed(?:nesday)?|Thu(?:rsday)?|Fri(?:day)?|Sat(?:urday)?|Sun(?:day)?)`,
	"YEAR":             `(?:\d\d){1,2}`,
	"HOUR":             `(?:2[0123]|[01]?[0-9])`,
	"MINUTE":           `[0-5][0-9]`,
	"SECOND":           `(?:[0-5]?[0-9]|60)(?:[:.,][0-9]+)?`,
	"TIME":             `%{HOUR}:%{MINUTE}(?::%{SECOND})?`,
	"DATE_US":          `%{MONTHNUM}[/-]%{MONTHDAY}[/-]%{YEAR}`,
	"DATE_EU":          `%{MONTHDAY}[./-]%{MONTHNUM}[./-]%{YEAR}`,
	"ISO8601_TIMEZONE": `(?:Z|[+-]%{HOUR}(?::?%{MINUTE}))`,
	"TIMESTAMP_ISO8601": `%{YEAR}-%{MONTHNUM}-%{MONTHDAY}[T ]%{HOUR}:?%{MINUTE}(?::?%{SECOND})?%{ISO8601_TIMEZONE}?`,
	"DATE":             `(?:%{DATE_US}|%{DATE_EU})`,
	"DATESTAMP":        `%{DATE}[- ]%{TIME}`,
	"HTTPDATE":         `%{MONTHDAY}/%{MONTH}/%{YEAR}:%{TIME} %{INT}`,
	"SYSLOGTIMESTAMP":  `%{MONTH} +%{MONTHDAY} %{TIME}`,

	// Users
	"USER":           `[a-zA-Z0-9._-]+`,
	"USERNAME":       `[a-zA-Z0-9._-]+`,
	"EMAILLOCALPART": `[a-zA-Z0-9!#$%&'*+/=?^_\x60{|}~-]+`,
	"EMAILADDRESS":   `%{EMAILLOCALPART}@%{HOSTNAME}`,

	// Syslog
	"PROG":           `[\w._/%-]+`,
	"SYSLOGPROG":     `%{PROG:program}(?:\[%{POSINT:pid}\])?`,
	"SYSLOGHOST":     `%{IPORHOST}`,
	"SYSLOGFACILITY": `<%{NONNEGINT:facility}.%{NONNEGINT:priority}>`,
	"SYSLOGBASE":     `%{SYSLOGTIMESTAMP:timestamp} (?:%{SYSLOGFACILITY} )?%{SYSLOGHOST:logsource} %{SYSLOGPROG}:`,

	// HTTP log formats
	"HTTPDUSER":         `(?:%{EMAILADDRESS}|%{USER})`,
	"COMMONAPACHELOG":   `%{IPORHOST:clientip} %{HTTPDUSER:ident} %{USER:auth} \[%{HTTPDATE:timestamp}\] "(?:%{WORD:verb} %{NOTSPACE:request}(?: HTTP/%{NUMBER:httpversion})?|%{DATA:rawrequest})" %{NUMBER:response} (?:%{NUMBER:bytes}|-)`,
	"COMBINEDAPACHELOG": `%{COMMONAPACHELOG} %{QS:referrer} %{QS:agent}`,
}
