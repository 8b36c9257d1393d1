package http

// ErrorResponse cuerpo estándar de error de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InitiateRequest formulario de checkout que inicia el pago Webpay.
type InitiateRequest struct {
	BasketID        int64  `json:"basket_id" form:"basket_id"`
	IDOption        string `json:"id_option" form:"id_option"` // "0" RUT, "1" pasaporte, "2" otro
	IDNumber        string `json:"id_number" form:"id_number"`
	IDOther         string `json:"id_other" form:"id_other"`
	FirstName       string `json:"first_name" form:"first_name"`
	LastName1       string `json:"last_name_1" form:"last_name_1"`
	LastName2       string `json:"last_name_2" form:"last_name_2"`
	BillingCountry  string `json:"billing_country_iso2" form:"billing_country_iso2"`
	BillingCity     string `json:"billing_city" form:"billing_city"`
	BillingDistrict string `json:"billing_district" form:"billing_district"`
	BillingAddress  string `json:"billing_address" form:"billing_address"`
}

// InitiateResponse parámetros para que el storefront redirija al comprador a
// la página de pago de Webpay.
type InitiateResponse struct {
	PaymentPageURL string `json:"payment_page_url"`
	TokenWS        string `json:"token_ws"`
}

// FailureResponse mensaje de rechazo para mostrar al comprador.
type FailureResponse struct {
	OrderNumber string `json:"order_number"`
	Message     string `json:"msg"`
}
