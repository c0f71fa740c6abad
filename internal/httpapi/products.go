package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/safar/fishmart/internal/models"
	"github.com/safar/fishmart/internal/storage"
	"github.com/safar/fishmart/internal/store"
	"go.uber.org/zap"
)

// multipartOverhead is the slack allowed on top of the image limit for
// boundaries and part headers.
const multipartOverhead = 64 << 10

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, hit, err := s.cache.GetAvailable(ctx)
	if err != nil {
		s.log.Warn("read product cache", zap.Error(err))
	}
	if hit {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		respondJSON(w, http.StatusOK, envelope{"products": products})
		return
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	products, err = s.store.ListAvailableProducts(ctx)
	if err != nil {
		s.respondError(w, r, err, "Error fetching products")
		return
	}

	if err := s.cache.SetAvailable(ctx, products); err != nil {
		s.log.Warn("fill product cache", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, envelope{"products": products})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "product")
	if err != nil {
		s.respondError(w, r, err, "Error fetching product")
		return
	}

	product, err := s.store.GetProduct(r.Context(), productID)
	if err != nil {
		s.respondError(w, r, err, "Error fetching product")
		return
	}

	respondJSON(w, http.StatusOK, envelope{"product": product})
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	var req store.NewProduct
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, "Error adding product")
		return
	}

	product, err := s.store.AddProduct(r.Context(), id.UserID, id.Role, req)
	if err != nil {
		s.respondError(w, r, err, "Error adding product")
		return
	}
	s.invalidateProducts(r)

	respondJSON(w, http.StatusCreated, envelope{
		"message":     "Product added successfully",
		"productId":   product.ID,
		"expiry_date": product.ExpiryDate,
		"product":     product,
	})
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	productID, err := idParam(r, "product")
	if err != nil {
		s.respondError(w, r, err, "Error updating product")
		return
	}

	var patch store.ProductPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.respondError(w, r, err, "Error updating product")
		return
	}

	product, err := s.store.UpdateProduct(r.Context(), id.UserID, id.Role, productID, patch)
	if err != nil {
		s.respondError(w, r, err, "Error updating product")
		return
	}
	s.invalidateProducts(r)

	message := "Your product was updated successfully"
	if id.Role == models.RoleAdmin {
		message = "Product updated successfully by admin"
	}
	respondJSON(w, http.StatusOK, envelope{"message": message, "product": product})
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	productID, err := idParam(r, "product")
	if err != nil {
		s.respondError(w, r, err, "Error deleting product")
		return
	}

	if err := s.store.DeleteProduct(r.Context(), id.UserID, id.Role, productID); err != nil {
		s.respondError(w, r, err, "Error deleting product")
		return
	}
	s.invalidateProducts(r)

	message := "Your product was deleted successfully"
	if id.Role == models.RoleAdmin {
		message = "Product deleted successfully by admin"
	}
	respondJSON(w, http.StatusOK, envelope{"message": message})
}

// discardImage removes an object that no product row points at. Failures
// only leave an orphan behind, so they are logged.
func (s *Server) discardImage(ctx context.Context, name string) {
	if err := s.images.Delete(context.WithoutCancel(ctx), name); err != nil {
		s.log.Warn("discard uploaded image", zap.String("name", name), zap.Error(err))
	}
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	productID, err := idParam(r, "product")
	if err != nil {
		s.respondError(w, r, err, "Error uploading image")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, r, storage.ErrTooLarge, "Error uploading image")
			return
		}
		s.respondError(w, r, storage.ErrEmptyUpload, "Error uploading image")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, r, storage.ErrEmptyUpload, "Error uploading image")
		return
	}
	defer file.Close()

	upload, err := storage.ReadUpload(file, s.maxUpload)
	if err != nil {
		s.respondError(w, r, err, "Error uploading image")
		return
	}

	name := storage.ObjectName(productID, upload.Extension)
	url, err := s.images.Put(r.Context(), name, upload.Reader(), int64(len(upload.Data)), upload.ContentType)
	if err != nil {
		s.respondError(w, r, err, "Error uploading image")
		return
	}

	product, err := s.store.SetProductImage(r.Context(), id.UserID, id.Role, productID, url)
	if err != nil {
		s.discardImage(r.Context(), name)
		s.respondError(w, r, err, "Error uploading image")
		return
	}
	s.invalidateProducts(r)

	respondJSON(w, http.StatusOK, envelope{
		"message":   "Image uploaded successfully",
		"image_url": product.ImageURL,
		"product":   product,
	})
}
