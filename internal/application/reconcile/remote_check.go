package reconcile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/infrastructure/ventas"
)

// Nombres de los reportes CSV que get-boleta-emissions deja en outDir.
const (
	localReportFile     = "local_boletas.csv"
	duplicateReportFile = "duplicate_boletas.csv"
	missingReportFile   = "missing_boletas.csv"
	onlyLocalReportFile = "only_local_boletas.csv"
)

// RemoteCheck contrasta las boletas locales contra el listado remoto de
// Ventas desde la fecha dada. Corre cuatro verificaciones en orden y se
// detiene en la primera que falla: remoto vacío con locales presentes,
// boletas remotas duplicadas por orden, boletas remotas sin registro local y
// boletas locales de más. saveFiles escribe el CSV del hallazgo; email lo
// adjunta en un correo al equipo (e implica saveFiles). Una verificación
// fallida devuelve domain.ErrInconsistencia.
func (s *Service) RemoteCheck(ctx context.Context, since time.Time, saveFiles, email bool) error {
	if email {
		saveFiles = true
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("autenticar con la API de Ventas: %w", err)
	}

	remote, err := s.api.ListSales(ctx, since, "INGRESADA", token)
	if err != nil {
		return fmt.Errorf("listar ventas ingresadas: %w", err)
	}
	accounted, err := s.api.ListSales(ctx, since, "CONTABILIZADA", token)
	if err != nil {
		return fmt.Errorf("listar ventas contabilizadas: %w", err)
	}
	remote = append(remote, accounted...)
	s.log.Info().Int("count", len(remote)).Time("since", since).Msg("boletas remotas recuperadas")

	if len(remote) == 0 {
		return s.checkEmptyRemote(ctx, since, saveFiles, email)
	}
	if err := s.checkDuplicates(ctx, remote, saveFiles, email); err != nil {
		return err
	}
	if err := s.checkMissingLocally(ctx, remote, saveFiles, email); err != nil {
		return err
	}
	if err := s.checkOnlyLocal(ctx, since, remote, saveFiles, email); err != nil {
		return err
	}

	s.log.Info().Msg("verificación remota sin inconsistencias")
	return nil
}

// checkEmptyRemote con el remoto vacío, cualquier boleta local del período es
// una inconsistencia.
func (s *Service) checkEmptyRemote(ctx context.Context, since time.Time, saveFiles, email bool) error {
	local, err := s.boletas.CountEmittedSince(ctx, since)
	if err != nil {
		return err
	}
	if local == 0 {
		s.log.Info().Msg("sin boletas remotas ni locales en el período")
		return nil
	}

	s.log.Error().Int("local", local).Msg("hay boletas locales pero el listado remoto está vacío")
	if saveFiles {
		path, err := s.writeLocalReport(ctx, since, localReportFile)
		if err != nil {
			return err
		}
		if email {
			s.emailReport("[Ecommerce] Inconsistencia con API",
				"El listado remoto de Ventas no contiene boletas para el período, pero existen boletas locales. Se adjunta el detalle.",
				path)
		}
	}
	return fmt.Errorf("boletas locales sin contraparte remota: %w", domain.ErrInconsistencia)
}

// checkDuplicates agrupa el listado remoto por número de orden (rutCajero) y
// reporta las órdenes con más de una boleta.
func (s *Service) checkDuplicates(ctx context.Context, remote []ventas.Sale, saveFiles, email bool) error {
	byOrder := make(map[string][]ventas.Sale)
	for _, sale := range remote {
		byOrder[sale.OrderNumber()] = append(byOrder[sale.OrderNumber()], sale)
	}

	var duplicated []ventas.Sale
	for number, sales := range byOrder {
		if len(sales) > 1 {
			s.log.Error().Str("order_number", number).Int("count", len(sales)).
				Msg("la orden tiene más de una boleta remota")
			duplicated = append(duplicated, sales...)
		}
	}
	if len(duplicated) == 0 {
		return nil
	}

	if saveFiles {
		path, err := s.writeRemoteReport(ctx, duplicated, duplicateReportFile)
		if err != nil {
			return err
		}
		if email {
			s.emailReport("[Ecommerce] Existen boletas duplicadas",
				"Se detectaron órdenes con más de una boleta emitida en Ventas. Se adjunta el detalle con la marca de existencia local.",
				path)
		}
	}
	return fmt.Errorf("boletas remotas duplicadas: %w", domain.ErrInconsistencia)
}

// checkMissingLocally reporta vouchers remotos que no existen en la base
// local.
func (s *Service) checkMissingLocally(ctx context.Context, remote []ventas.Sale, saveFiles, email bool) error {
	var missing []ventas.Sale
	for _, sale := range remote {
		_, err := s.boletas.GetByVoucherID(ctx, sale.ID)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Error().Str("voucher_id", sale.ID).Str("order_number", sale.OrderNumber()).
				Msg("boleta remota sin registro local")
			missing = append(missing, sale)
			continue
		}
		if err != nil {
			return err
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if saveFiles {
		path, err := s.writeRemoteReport(ctx, missing, missingReportFile)
		if err != nil {
			return err
		}
		if email {
			s.emailReport("[Ecommerce] Inconsistencia de boletas",
				"Existen boletas en Ventas que no están registradas localmente. Se adjunta el detalle.",
				path)
		}
	}
	return fmt.Errorf("boletas remotas sin registro local: %w", domain.ErrInconsistencia)
}

// checkOnlyLocal reporta boletas locales del período que no aparecen en el
// listado remoto.
func (s *Service) checkOnlyLocal(ctx context.Context, since time.Time, remote []ventas.Sale, saveFiles, email bool) error {
	localCount, err := s.boletas.CountEmittedSince(ctx, since)
	if err != nil {
		return err
	}
	if localCount <= len(remote) {
		return nil
	}

	s.log.Error().Int("local", localCount).Int("remote", len(remote)).
		Msg("hay más boletas locales que remotas en el período")
	if saveFiles {
		remoteIDs := make(map[string]bool, len(remote))
		for _, sale := range remote {
			remoteIDs[sale.ID] = true
		}
		path, err := s.writeOnlyLocalReport(ctx, since, remoteIDs)
		if err != nil {
			return err
		}
		if email {
			s.emailReport("[Ecommerce] Inconsistencia de boletas",
				"Existen boletas locales que no aparecen en el listado de Ventas. Se adjunta el detalle.",
				path)
		}
	}
	return fmt.Errorf("boletas locales de más: %w", domain.ErrInconsistencia)
}

func (s *Service) emailReport(subject, body, attachment string) {
	if err := s.mailer.SendWithAttachment(subject, body, attachment); err != nil {
		s.log.Error().Err(err).Str("subject", subject).Msg("no fue posible enviar el reporte por correo")
	}
}

// writeRemoteReport CSV de ventas remotas con la marca de existencia local.
func (s *Service) writeRemoteReport(ctx context.Context, sales []ventas.Sale, name string) (string, error) {
	rows := [][]string{{"order_number", "boleta_id", "folio", "fecha", "monto", "on_DB"}}
	for _, sale := range sales {
		onDB := true
		if _, err := s.boletas.GetByVoucherID(ctx, sale.ID); errors.Is(err, domain.ErrNotFound) {
			onDB = false
		}
		monto := ""
		if len(sale.Recaudaciones) > 0 {
			monto = sale.Recaudaciones[0].Monto.String()
		}
		rows = append(rows, []string{
			sale.OrderNumber(), sale.ID, sale.Boleta.Folio,
			sale.Boleta.FechaEmision, monto, strconv.FormatBool(onDB),
		})
	}
	return s.writeCSV(name, rows)
}

// writeLocalReport CSV de todas las boletas locales del período, con los
// datos de su orden.
func (s *Service) writeLocalReport(ctx context.Context, since time.Time, name string) (string, error) {
	local, err := s.boletas.ListEmittedSince(ctx, since)
	if err != nil {
		return "", err
	}
	rows := [][]string{{"order_number", "total", "date_placed", "boleta_id"}}
	for _, b := range local {
		rows = append(rows, append(s.orderColumns(ctx, b.BasketID), b.VoucherID))
	}
	return s.writeCSV(name, rows)
}

// writeOnlyLocalReport como writeLocalReport pero filtrado a los vouchers que
// el remoto no lista.
func (s *Service) writeOnlyLocalReport(ctx context.Context, since time.Time, remoteIDs map[string]bool) (string, error) {
	local, err := s.boletas.ListEmittedSince(ctx, since)
	if err != nil {
		return "", err
	}
	rows := [][]string{{"order_number", "total", "date_placed", "boleta_id"}}
	for _, b := range local {
		if remoteIDs[b.VoucherID] {
			continue
		}
		rows = append(rows, append(s.orderColumns(ctx, b.BasketID), b.VoucherID))
	}
	return s.writeCSV(onlyLocalReportFile, rows)
}

// orderColumns resuelve orden y fechas de una boleta vía su carrito; las
// columnas quedan vacías si la cadena está rota.
func (s *Service) orderColumns(ctx context.Context, basketID *int64) []string {
	if basketID == nil {
		return []string{"", "", ""}
	}
	basket, err := s.baskets.GetByID(ctx, *basketID)
	if err != nil {
		return []string{"", "", ""}
	}
	order, err := s.orders.GetByNumber(ctx, basket.OrderNumber)
	if err != nil {
		return []string{basket.OrderNumber, "", ""}
	}
	return []string{order.Number, order.TotalInclTax.String(), order.DatePlaced.Format(time.RFC3339)}
}

func (s *Service) writeCSV(name string, rows [][]string) (string, error) {
	path := filepath.Join(s.outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("crear reporte %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("escribir reporte %s: %w", name, err)
	}
	s.log.Info().Str("path", path).Int("rows", len(rows)-1).Msg("reporte CSV escrito")
	return path, nil
}
