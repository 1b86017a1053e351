package serialize

// voidElements are elements that cannot have children and have no closing tag.
var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"keygen": true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// rawTextElements hold text that is written back exactly as parsed.
var rawTextElements = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"xmp":       true,
}

// preformattedElements keep their whitespace but have their text escaped.
var preformattedElements = map[string]bool{
	"pre":      true,
	"textarea": true,
	"listing":  true,
}

// inlineElements flow with surrounding text in pretty output.
var inlineElements = map[string]bool{
	"a":        true,
	"abbr":     true,
	"acronym":  true,
	"audio":    true,
	"b":        true,
	"bdi":      true,
	"bdo":      true,
	"big":      true,
	"br":       true,
	"button":   true,
	"canvas":   true,
	"cite":     true,
	"code":     true,
	"data":     true,
	"del":      true,
	"dfn":      true,
	"em":       true,
	"embed":    true,
	"font":     true,
	"i":        true,
	"img":      true,
	"input":    true,
	"ins":      true,
	"kbd":      true,
	"label":    true,
	"map":      true,
	"mark":     true,
	"meter":    true,
	"nobr":     true,
	"object":   true,
	"output":   true,
	"picture":  true,
	"progress": true,
	"q":        true,
	"rb":       true,
	"rp":       true,
	"rt":       true,
	"rtc":      true,
	"ruby":     true,
	"s":        true,
	"samp":     true,
	"select":   true,
	"slot":     true,
	"small":    true,
	"span":     true,
	"strike":   true,
	"strong":   true,
	"sub":      true,
	"sup":      true,
	"textarea": true,
	"time":     true,
	"tt":       true,
	"u":        true,
	"var":      true,
	"video":    true,
	"wbr":      true,
}

// booleanAttrs are attributes whose presence is their value.
var booleanAttrs = map[string]bool{
	"allowfullscreen": true,
	"async":           true,
	"autofocus":       true,
	"autoplay":        true,
	"checked":         true,
	"compact":         true,
	"controls":        true,
	"declare":         true,
	"default":         true,
	"defaultchecked":  true,
	"defaultmuted":    true,
	"defaultselected": true,
	"defer":           true,
	"disabled":        true,
	"enabled":         true,
	"formnovalidate":  true,
	"hidden":          true,
	"indeterminate":   true,
	"inert":           true,
	"ismap":           true,
	"itemscope":       true,
	"loop":            true,
	"multiple":        true,
	"muted":           true,
	"nohref":          true,
	"nomodule":        true,
	"noresize":        true,
	"noshade":         true,
	"novalidate":      true,
	"nowrap":          true,
	"open":            true,
	"pauseonexit":     true,
	"playsinline":     true,
	"readonly":        true,
	"required":        true,
	"reversed":        true,
	"scoped":          true,
	"seamless":        true,
	"selected":        true,
	"sortable":        true,
	"truespeed":       true,
	"typemustmatch":   true,
	"visible":         true,
}

// emptyRemovableAttrs are dropped when their value is empty.
var emptyRemovableAttrs = map[string]bool{
	"class": true,
	"dir":   true,
	"id":    true,
	"lang":  true,
	"name":  true,
	"title": true,
}
