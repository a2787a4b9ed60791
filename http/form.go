package http

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"evrange/ml"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>EV Range Predictor</title>
<style>
body { font-family: sans-serif; max-width: 36em; margin: 2em auto; }
label { display: block; margin-top: 0.8em; }
.result { margin-top: 1.2em; font-size: 1.3em; }
.error { margin-top: 1.2em; color: #b00020; }
</style>
</head>
<body>
<h1>EV Range Predictor</h1>
{{if not .ModelLoaded}}<p class="error">The model is not ready yet.</p>{{end}}
<form method="post" action="/">
{{range .Fields}}
<label>{{.Label}} ({{.Min}} to {{.Max}})
<input type="number" step="any" name="{{.Name}}" value="{{.Value}}" min="{{.Min}}" max="{{.Max}}" required>
</label>
{{end}}
<p><button type="submit">Predict</button></p>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Result}}<p class="result">{{.Result}}</p>{{end}}
</body>
</html>`

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type formField struct {
	Name  string
	Label string
	Min   float64
	Max   float64
	Value string
}

type formPage struct {
	Fields      []formField
	ModelLoaded bool
	Result      string
	Error       string
}

var formLabels = []struct{ name, label string }{
	{ml.FeatureBattery, "Battery capacity (kWh)"},
	{ml.FeatureTopSpeed, "Top speed (km/h)"},
	{ml.FeatureLength, "Length (mm)"},
	{ml.FeatureAcceleration, "0-100 km/h (s)"},
}

func newFormPage(values map[string]string, loaded bool) formPage {
	page := formPage{ModelLoaded: loaded}
	for _, f := range formLabels {
		bound := ml.FormBounds[f.name]
		page.Fields = append(page.Fields, formField{
			Name:  f.name,
			Label: f.label,
			Min:   bound.Min,
			Max:   bound.Max,
			Value: values[f.name],
		})
	}
	return page
}

func defaultFormValues() map[string]string {
	values := make(map[string]string)
	for name, v := range ml.DefaultFormInput().Row() {
		values[name] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return values
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, http.StatusOK, newFormPage(defaultFormValues(), s.models.Status().Loaded))
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderForm(w, http.StatusBadRequest, newFormPage(defaultFormValues(), s.models.Status().Loaded))
		return
	}
	values := make(map[string]string)
	for _, f := range formLabels {
		values[f.name] = strings.TrimSpace(r.PostForm.Get(f.name))
	}
	page := newFormPage(values, s.models.Status().Loaded)

	input, err := parseFormInput(values)
	if err == nil {
		err = input.Validate()
	}
	if err != nil {
		page.Error = err.Error()
		s.renderForm(w, http.StatusBadRequest, page)
		return
	}

	row := input.Row()
	value, err := s.models.Predict(r.Context(), row)
	s.countPrediction("web", err)
	if err != nil {
		page.Error = "Prediction failed: " + err.Error()
		s.renderForm(w, statusFor(err), page)
		return
	}
	s.recordPrediction(r.Context(), "web", row, value, s.models.Status().Version)
	page.Result = fmt.Sprintf("Estimated range: %.2f km", value)
	s.renderForm(w, http.StatusOK, page)
}

func parseFormInput(values map[string]string) (ml.FormInput, error) {
	parsed := make(map[string]float64, len(values))
	for _, f := range formLabels {
		raw := values[f.name]
		if raw == "" {
			return ml.FormInput{}, fmt.Errorf("%s is required", f.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ml.FormInput{}, fmt.Errorf("%s must be a number", f.name)
		}
		parsed[f.name] = v
	}
	return ml.FormInput{
		BatteryKWh:    parsed[ml.FeatureBattery],
		TopSpeedKmh:   parsed[ml.FeatureTopSpeed],
		LengthMM:      parsed[ml.FeatureLength],
		AccelerationS: parsed[ml.FeatureAcceleration],
	}, nil
}

func (s *Server) renderForm(w http.ResponseWriter, status int, page formPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, page); err != nil {
		s.logger.Sugar().Warnf("render form: %v", err)
	}
}
