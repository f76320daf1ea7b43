package compiler

// Header names carrying the chosen redirect from vcl_recv to vcl_error.
const (
	LocationHeader = "X-Redirect-Location"
	StatusHeader   = "X-Redirect-Status"
)

const logicPrologue = `
// cloudlet_redirect_logic begins

declare local var.cust_location STRING;
declare local var.cust_priority STRING;
declare local var.cust_status_code STRING;
declare local var.cust_use_query_string STRING;
declare local var.cust_full_path STRING;

set var.cust_full_path = "https://" + req.http.host + req.url.path;
`

// logicEpilogue picks between the table match and the first matching rule block.
// When both matched the smaller numeric id wins; on equal ids the table wins.
const logicEpilogue = `
  declare local var.dict_result STRING;
  declare local var.dict_start STRING;
  declare local var.dict_end STRING;
  declare local var.dict_location STRING;
  declare local var.dict_priority STRING;
  declare local var.dict_status_code STRING;
  declare local var.dict_use_query_string STRING;
  declare local var.dict_matched BOOL;

  set var.dict_matched = false;

  // exact path lookup
  set var.dict_result = table.lookup(` + TableName + `, req.url.path);

  if (var.dict_result ~ "` + recordPattern + `") {
    set var.dict_start = re.group.1;
    set var.dict_end = re.group.2;
    set var.dict_priority = re.group.3;
    set var.dict_status_code = re.group.4;
    set var.dict_use_query_string = re.group.5;
    set var.dict_location = re.group.6;
    set var.dict_matched = true;

    if (var.dict_start != "0" && !time.is_after(now, std.integer2time(std.atoi(var.dict_start)))) {
      set var.dict_matched = false;
    }
    if (var.dict_end != "0" && !time.is_after(std.integer2time(std.atoi(var.dict_end)), now)) {
      set var.dict_matched = false;
    }
  }

  // 1) both matched: the lower id wins
  // 2) only a rule block matched
  // 3) only the table matched
  // 4) nothing matched
  if (var.cust_priority && var.dict_matched) {
    if (std.atoi(var.cust_priority) < std.atoi(var.dict_priority)) {
      set req.http.` + LocationHeader + ` = if(var.cust_use_query_string == "useQS" && req.url.qs != "", var.cust_location + "?" + req.url.qs, var.cust_location);
      set req.http.` + StatusHeader + ` = var.cust_status_code;
    } else {
      set req.http.` + LocationHeader + ` = if(var.dict_use_query_string == "useQS" && req.url.qs != "", var.dict_location + "?" + req.url.qs, var.dict_location);
      set req.http.` + StatusHeader + ` = var.dict_status_code;
    }
  } elseif (var.cust_priority) {
    set req.http.` + LocationHeader + ` = if(var.cust_use_query_string == "useQS" && req.url.qs != "", var.cust_location + "?" + req.url.qs, var.cust_location);
    set req.http.` + StatusHeader + ` = var.cust_status_code;
  } elseif (var.dict_matched) {
    set req.http.` + LocationHeader + ` = if(var.dict_use_query_string == "useQS" && req.url.qs != "", var.dict_location + "?" + req.url.qs, var.dict_location);
    set req.http.` + StatusHeader + ` = var.dict_status_code;
  } else {
    unset req.http.` + LocationHeader + `;
  }

  if (req.http.` + LocationHeader + `) {
    error 777 req.http.` + LocationHeader + `;
  }
`

// handlerSnippet turns the synthetic 777 into the real redirect response.
const handlerSnippet = `  # Cloudlet Redirect handler
  if (obj.status == 777) {
    set obj.status = std.atoi(req.http.` + StatusHeader + `);
    set obj.http.Location = obj.response;
    if (obj.status == 301) {
      set obj.response = "Moved Permanently";
    } elseif (obj.status == 302) {
      set obj.response = "Found";
    } elseif (obj.status == 303) {
      set obj.response = "See Other";
    } elseif (obj.status == 307) {
      set obj.response = "Temporary Redirect";
    } elseif (obj.status == 308) {
      set obj.response = "Permanent Redirect";
    }
    synthetic "";
    return(deliver);
  }
`

// ReasonPhrase returns the response reason the handler sets for a redirect
// status, or "" when the handler leaves it alone.
func ReasonPhrase(status int) string {
	switch status {
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 303:
		return "See Other"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	default:
		return ""
	}
}
