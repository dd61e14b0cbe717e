package analyzer

var Truncate = truncate
